// Package expo implements push.Deliverer against the Expo push API.
package expo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/tinywideclouds/go-push-relay/internal/metrics"
	"github.com/tinywideclouds/go-push-relay/pkg/push"
)

// DefaultPushURL is Expo's send endpoint.
const DefaultPushURL = "https://exp.host/--/api/v2/push/send"

type Config struct {
	PushURL string
	// AccessToken is sent as a bearer token when Expo enhanced push
	// security is enabled for the project.
	AccessToken string
	Timeout     time.Duration
}

// Client performs exactly one synchronous POST per Deliver call. It does not
// retry.
type Client struct {
	pushURL     string
	host        string
	accessToken string
	httpClient  *http.Client
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewClient(cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(cfg.PushURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid push url %q", cfg.PushURL)
	}
	return &Client{
		pushURL:     cfg.PushURL,
		host:        u.Host,
		accessToken: cfg.AccessToken,
		// The transport only decompresses when it set Accept-Encoding
		// itself; readBody handles the compressed mode.
		httpClient: &http.Client{Timeout: cfg.Timeout},
		metrics:    m,
		logger:     logger.With("component", "ExpoClient"),
	}, nil
}

// Deliver sends the shaped payload and returns the upstream status and body.
// Transport failures are returned as *push.UpstreamError; any HTTP response,
// whatever its status, is returned as a result.
func (c *Client) Deliver(ctx context.Context, payload *push.Payload) (*push.DeliveryResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pushURL, bytes.NewReader(payload.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Host = c.host
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if payload.Compressed {
		req.Header.Set("Content-Encoding", "gzip")
		req.Header.Set("Accept-Encoding", "gzip, deflate")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(payload.Compressed, 0, time.Since(start))
		c.logger.Error("Push API transport error", "url", c.pushURL, "err", err)
		return nil, &push.UpstreamError{Err: err}
	}
	defer resp.Body.Close()
	c.metrics.ObserveUpstream(payload.Compressed, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("Failed to read push API response", "status", resp.StatusCode, "err", err)
		return nil, &push.UpstreamError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	body, err := decodeBody(raw, encoding)
	if err != nil {
		c.logger.Warn("Push API response could not be decoded, relaying raw body", "encoding", encoding, "err", err)
		body = raw
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Warn("Push API rejected request", "status", resp.StatusCode, "count", payload.Count)
	} else {
		c.logger.Debug("Push API accepted request", "status", resp.StatusCode, "count", payload.Count)
	}

	return push.NewDeliveryResult(resp.StatusCode, body), nil
}

// decodeBody undoes the response Content-Encoding. "deflate" is
// zlib-wrapped per RFC 9110, but raw deflate is accepted as a fallback.
func decodeBody(raw []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip response: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "deflate":
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			return io.ReadAll(zr)
		}
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		return io.ReadAll(fr)
	default:
		return raw, nil
	}
}
