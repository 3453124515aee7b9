package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlExpoConfig struct {
	PushURL     string `yaml:"push_url"`
	AccessToken string `yaml:"access_token"`
	Timeout     string `yaml:"timeout"`
}

type YamlCryptoConfig struct {
	Key string `yaml:"key"`
	IV  string `yaml:"iv"`
}

type YamlStorageConfig struct {
	Backend   string `yaml:"backend"`
	UploadDir string `yaml:"upload_dir"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ListenAddr     string            `yaml:"listen_addr"`
	BasePath       string            `yaml:"base_path"`
	MaxUploadBytes int64             `yaml:"max_upload_bytes"`
	CorsConfig     YamlCorsConfig    `yaml:"cors"`
	ExpoConfig     YamlExpoConfig    `yaml:"expo"`
	CryptoConfig   YamlCryptoConfig  `yaml:"crypto"`
	StorageConfig  YamlStorageConfig `yaml:"storage"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	var timeout time.Duration
	if baseCfg.ExpoConfig.Timeout != "" {
		d, err := time.ParseDuration(baseCfg.ExpoConfig.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid expo.timeout %q: %w", baseCfg.ExpoConfig.Timeout, err)
		}
		timeout = d
	}

	cfg := &Config{
		ListenAddr:     baseCfg.ListenAddr,
		BasePath:       baseCfg.BasePath,
		MaxUploadBytes: baseCfg.MaxUploadBytes,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Expo: ExpoConfig{
			PushURL:     baseCfg.ExpoConfig.PushURL,
			AccessToken: baseCfg.ExpoConfig.AccessToken,
			Timeout:     timeout,
		},
		Crypto: CryptoConfig{
			Key: baseCfg.CryptoConfig.Key,
			IV:  baseCfg.CryptoConfig.IV,
		},
		Storage: StorageConfig{
			Backend:   baseCfg.StorageConfig.Backend,
			UploadDir: baseCfg.StorageConfig.UploadDir,
			Bucket:    baseCfg.StorageConfig.Bucket,
			Prefix:    baseCfg.StorageConfig.Prefix,
		},
	}

	logger.Debug("YAML config mapping complete",
		"listen_addr", cfg.ListenAddr,
		"push_url", cfg.Expo.PushURL,
		"storage_backend", cfg.Storage.Backend,
	)

	return cfg, nil
}
