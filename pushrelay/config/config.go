package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

const (
	DefaultPushURL        = "https://exp.host/--/api/v2/push/send"
	DefaultTimeout        = 10 * time.Second
	DefaultUploadDir      = "uploads"
	DefaultMaxUploadBytes = 32 << 20

	BackendLocal = "local"
	BackendGCS   = "gcs"

	keySize = 32
	ivSize  = 16
)

type ExpoConfig struct {
	PushURL     string `validate:"required,url"`
	AccessToken string
	Timeout     time.Duration
}

// CryptoConfig holds the shared upload key and IV as configured. Values are
// raw strings unless prefixed with "hex:" or "base64:".
type CryptoConfig struct {
	Key string
	IV  string
}

// Enabled reports whether the encrypted upload endpoints should be served.
func (c CryptoConfig) Enabled() bool {
	return c.Key != "" || c.IV != ""
}

// Secrets decodes the key and IV and checks their sizes for AES-256-CBC.
func (c CryptoConfig) Secrets() (key, iv []byte, err error) {
	if key, err = ParseSecret(c.Key); err != nil {
		return nil, nil, fmt.Errorf("crypto key: %w", err)
	}
	if iv, err = ParseSecret(c.IV); err != nil {
		return nil, nil, fmt.Errorf("crypto iv: %w", err)
	}
	if len(key) != keySize {
		return nil, nil, fmt.Errorf("crypto key must decode to %d bytes, got %d", keySize, len(key))
	}
	if len(iv) != ivSize {
		return nil, nil, fmt.Errorf("crypto iv must decode to %d bytes, got %d", ivSize, len(iv))
	}
	return key, iv, nil
}

type StorageConfig struct {
	Backend   string `validate:"oneof=local gcs"`
	UploadDir string `validate:"required_if=Backend local"`
	Bucket    string `validate:"required_if=Backend gcs"`
	Prefix    string
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ListenAddr     string
	BasePath       string
	MaxUploadBytes int64

	CorsConfig middleware.CorsConfig `validate:"-"`
	Expo       ExpoConfig
	Crypto     CryptoConfig
	Storage    StorageConfig
}

// ParseSecret decodes a configured secret: "hex:<hex>", "base64:<std
// base64>", or the raw bytes of the string.
func ParseSecret(s string) ([]byte, error) {
	switch {
	case strings.HasPrefix(s, "hex:"):
		return hex.DecodeString(strings.TrimPrefix(s, "hex:"))
	case strings.HasPrefix(s, "base64:"):
		return base64.StdEncoding.DecodeString(strings.TrimPrefix(s, "base64:"))
	case s == "":
		return nil, errors.New("value is empty")
	default:
		return []byte(s), nil
	}
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("BASE_PATH"); val != "" {
		logger.Debug("Overriding config value", "key", "BASE_PATH", "source", "env")
		cfg.BasePath = val
	}
	if val := os.Getenv("MAX_UPLOAD_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n > 0 {
			logger.Debug("Overriding config value", "key", "MAX_UPLOAD_BYTES", "source", "env")
			cfg.MaxUploadBytes = n
		}
	}

	// Expo Overrides
	if val := os.Getenv("EXPO_PUSH_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "EXPO_PUSH_URL", "source", "env")
		cfg.Expo.PushURL = val
	}
	if val := os.Getenv("EXPO_ACCESS_TOKEN"); val != "" {
		logger.Debug("Overriding config value", "key", "EXPO_ACCESS_TOKEN", "source", "env")
		cfg.Expo.AccessToken = val
	}
	if val := os.Getenv("EXPO_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid EXPO_TIMEOUT %q: %w", val, err)
		}
		logger.Debug("Overriding config value", "key", "EXPO_TIMEOUT", "source", "env")
		cfg.Expo.Timeout = d
	}

	// Crypto Overrides
	if val := os.Getenv("DECRYPT_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "DECRYPT_KEY", "source", "env")
		cfg.Crypto.Key = val
	}
	if val := os.Getenv("DECRYPT_IV"); val != "" {
		logger.Debug("Overriding config value", "key", "DECRYPT_IV", "source", "env")
		cfg.Crypto.IV = val
	}

	// Storage Overrides
	if val := os.Getenv("STORAGE_BACKEND"); val != "" {
		logger.Debug("Overriding config value", "key", "STORAGE_BACKEND", "source", "env")
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("UPLOAD_DIR"); val != "" {
		logger.Debug("Overriding config value", "key", "UPLOAD_DIR", "source", "env")
		cfg.Storage.UploadDir = val
	}
	if val := os.Getenv("STORAGE_BUCKET"); val != "" {
		logger.Debug("Overriding config value", "key", "STORAGE_BUCKET", "source", "env")
		cfg.Storage.Bucket = val
	}
	if val := os.Getenv("STORAGE_PREFIX"); val != "" {
		logger.Debug("Overriding config value", "key", "STORAGE_PREFIX", "source", "env")
		cfg.Storage.Prefix = val
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Expo.PushURL == "" {
		cfg.Expo.PushURL = DefaultPushURL
	}
	if cfg.Expo.Timeout <= 0 {
		cfg.Expo.Timeout = DefaultTimeout
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendLocal
	}
	if cfg.Storage.Backend == BackendLocal && cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = DefaultUploadDir
	}

	// 3. Final Validation
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Crypto.Enabled() {
		if _, _, err := cfg.Crypto.Secrets(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
