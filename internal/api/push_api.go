package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-push-relay/internal/pipeline"
	"github.com/tinywideclouds/go-push-relay/pkg/push"
)

// PushAPI serves the notification send endpoints.
type PushAPI struct {
	Processor    *pipeline.Processor
	MaxBodyBytes int64
	Logger       *slog.Logger
}

func NewPushAPI(processor *pipeline.Processor, maxBodyBytes int64, logger *slog.Logger) *PushAPI {
	return &PushAPI{
		Processor:    processor,
		MaxBodyBytes: maxBodyBytes,
		Logger:       logger,
	}
}

func (api *PushAPI) SendSingle(w http.ResponseWriter, r *http.Request) {
	api.send(w, r, pipeline.ModeSingle)
}

func (api *PushAPI) SendBatch(w http.ResponseWriter, r *http.Request) {
	api.send(w, r, pipeline.ModeBatch)
}

func (api *PushAPI) SendGzip(w http.ResponseWriter, r *http.Request) {
	api.send(w, r, pipeline.ModeGzip)
}

func (api *PushAPI) SendHeadless(w http.ResponseWriter, r *http.Request) {
	api.send(w, r, pipeline.ModeHeadless)
}

func (api *PushAPI) send(w http.ResponseWriter, r *http.Request, mode pipeline.Mode) {
	body, err := api.decodeBody(w, r)
	if err != nil {
		api.Logger.Warn("Send: JSON decode failed", "mode", mode.String(), "err", err)
		writeError(w, &push.ValidationError{Reason: "Invalid JSON payload."})
		return
	}

	result, err := api.Processor.Process(r.Context(), mode, body)
	if err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, result)
}

// decodeBody reads exactly one JSON value, keeping numbers as json.Number so
// they are forwarded without float rounding.
func (api *PushAPI) decodeBody(w http.ResponseWriter, r *http.Request) (any, error) {
	reader := io.Reader(r.Body)
	if api.MaxBodyBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, api.MaxBodyBytes)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	if body == nil {
		return nil, errors.New("null payload")
	}
	return body, nil
}
