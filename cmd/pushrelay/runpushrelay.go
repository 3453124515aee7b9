package main

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-push-relay/internal/metrics"
	"github.com/tinywideclouds/go-push-relay/internal/platform/expo"
	"github.com/tinywideclouds/go-push-relay/internal/storage/gcs"
	"github.com/tinywideclouds/go-push-relay/internal/storage/local"
	"github.com/tinywideclouds/go-push-relay/pkg/push"
	"github.com/tinywideclouds/go-push-relay/pushrelay"
	"github.com/tinywideclouds/go-push-relay/pushrelay/config"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-push-relay")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Embedded config is invalid", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	// --- Delivery ---
	expoClient, err := expo.NewClient(expo.Config{
		PushURL:     cfg.Expo.PushURL,
		AccessToken: cfg.Expo.AccessToken,
		Timeout:     cfg.Expo.Timeout,
	}, m, logger)
	if err != nil {
		logger.Error("Expo client failed", "err", err)
		os.Exit(1)
	}
	logger.Info("Expo client initialized", "url", cfg.Expo.PushURL, "timeout", cfg.Expo.Timeout)

	// --- File Store ---
	var store push.FileStore
	if cfg.Crypto.Enabled() {
		switch cfg.Storage.Backend {
		case config.BackendGCS:
			gcsClient, err := storage.NewClient(ctx, option.WithUserAgent("go-push-relay"))
			if err != nil {
				logger.Error("Storage client failed", "err", err)
				os.Exit(1)
			}
			defer gcsClient.Close()

			gcsStore, err := gcs.NewFileStore(gcsClient, cfg.Storage.Bucket, cfg.Storage.Prefix, logger)
			if err != nil {
				logger.Error("GCS file store failed", "err", err)
				os.Exit(1)
			}
			store = gcsStore
		default:
			localStore, err := local.NewFileStore(cfg.Storage.UploadDir, logger)
			if err != nil {
				logger.Error("Local file store failed", "err", err)
				os.Exit(1)
			}
			store = localStore
		}
		logger.Info("FileStore initialized", "type", cfg.Storage.Backend)
	}

	// --- Service ---
	service, err := pushrelay.New(cfg, expoClient, store, m, registry, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = service.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting service...", "addr", cfg.ListenAddr)
	if err := service.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}
