package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-push-relay/pkg/push"
)

// Processor runs the notification pipeline: Validate -> Shape -> Deliver.
// It makes at most one outbound call per request and never retries.
type Processor struct {
	deliverer push.Deliverer
	logger    *slog.Logger
}

func NewProcessor(deliverer push.Deliverer, logger *slog.Logger) *Processor {
	return &Processor{
		deliverer: deliverer,
		logger:    logger.With("component", "Processor"),
	}
}

// Process validates and shapes body for the given mode and relays it. An
// upstream error status is returned as a normal result, not an error.
func (p *Processor) Process(ctx context.Context, mode Mode, body any) (*push.DeliveryResult, error) {
	procLogger := p.logger.With("mode", mode.String())

	req, err := Validate(mode, body)
	if err != nil {
		procLogger.Warn("Rejected notification request", "reason", err)
		return nil, err
	}

	payload, err := Shape(req)
	if err != nil {
		procLogger.Error("Failed to shape notification payload", "err", err)
		return nil, err
	}

	result, err := p.deliverer.Deliver(ctx, payload)
	if err != nil {
		procLogger.Error("Delivery failed", "count", payload.Count, "err", err)
		return nil, fmt.Errorf("%s delivery: %w", mode, err)
	}

	procLogger.Info("Notification relayed", "count", payload.Count, "upstream_status", result.StatusCode)
	return result, nil
}
