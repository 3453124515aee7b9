package pushrelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-push-relay/internal/api"
	"github.com/tinywideclouds/go-push-relay/internal/metrics"
	"github.com/tinywideclouds/go-push-relay/internal/pipeline"
	"github.com/tinywideclouds/go-push-relay/internal/unwrap"
	"github.com/tinywideclouds/go-push-relay/pkg/push"
	"github.com/tinywideclouds/go-push-relay/pushrelay/config"
)

// MetricsPath is where the Prometheus exposition is served.
const MetricsPath = "/internal/metrics"

type Wrapper struct {
	*microservice.BaseServer
	router *api.Router
	logger *slog.Logger
}

// New assembles the service. store may be nil when the crypto endpoints are
// disabled; gatherer may be nil to skip the metrics endpoint.
func New(
	cfg *config.Config,
	deliverer push.Deliverer,
	store push.FileStore,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) (*Wrapper, error) {
	if deliverer == nil {
		return nil, errors.New("deliverer is required")
	}

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Send pipeline
	processor := pipeline.NewProcessor(deliverer, logger)
	pushAPI := api.NewPushAPI(processor, cfg.MaxUploadBytes, logger.With("component", "PushAPI"))

	// 3. Encrypted uploads
	var uploadAPI *api.UploadAPI
	if cfg.Crypto.Enabled() {
		if store == nil {
			return nil, errors.New("file store is required when crypto is enabled")
		}
		key, iv, err := cfg.Crypto.Secrets()
		if err != nil {
			return nil, err
		}
		unwrapper, err := unwrap.New(key, iv)
		if err != nil {
			return nil, fmt.Errorf("failed to create unwrapper: %w", err)
		}
		uploadAPI = api.NewUploadAPI(unwrapper, store, cfg.MaxUploadBytes, m, logger.With("component", "UploadAPI"))
	} else {
		logger.Warn("Decryption key missing in configuration. Encrypted upload endpoints are disabled.")
	}

	router := api.NewRouter(cfg.BasePath, pushAPI, uploadAPI, m, logger)

	// Register Routes
	mux := baseServer.Mux()

	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	if gatherer != nil {
		mux.Handle("GET "+MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", router.WithCORS(corsMiddleware))

	logger.Info("Routes registered", "paths", router.Paths())

	return &Wrapper{
		BaseServer: baseServer,
		router:     router,
		logger:     logger,
	}, nil
}

// Handler exposes the relay routes without the base server, for tests.
func (w *Wrapper) Handler() *api.Router {
	return w.router
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		return err
	}
	w.logger.Info("Service shutdown complete.")
	return nil
}
