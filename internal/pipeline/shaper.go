package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/gzip"
	"github.com/tinywideclouds/go-push-relay/pkg/push"
)

// Shape turns a validated request into the exact bytes sent upstream.
// Encoding failures are returned as *push.EncodingError so the caller can
// answer locally without touching the network.
func Shape(req *Request) (*push.Payload, error) {
	switch req.Mode {
	case ModeSingle:
		body, err := encodeJSON(req.Notification)
		if err != nil {
			return nil, &push.EncodingError{Err: err}
		}
		return &push.Payload{Body: body, Count: 1}, nil

	case ModeHeadless:
		body, err := encodeJSON(Headless(req.Notification))
		if err != nil {
			return nil, &push.EncodingError{Err: err}
		}
		return &push.Payload{Body: body, Count: 1}, nil

	case ModeBatch:
		body, err := encodeJSON(req.Notifications)
		if err != nil {
			return nil, &push.EncodingError{Err: err}
		}
		return &push.Payload{Body: body, Count: len(req.Notifications)}, nil

	case ModeGzip:
		body, err := encodeJSON(req.Notifications)
		if err != nil {
			return nil, &push.EncodingError{Err: err}
		}
		compressed, err := gzipBytes(body)
		if err != nil {
			return nil, &push.EncodingError{Err: err}
		}
		return &push.Payload{Body: compressed, Compressed: true, Count: len(req.Notifications)}, nil

	default:
		return nil, fmt.Errorf("unsupported mode %s", req.Mode)
	}
}

// Headless returns a copy of n with the visual fields removed and both
// background-delivery flags forced on. Applying it twice is the same as
// applying it once.
func Headless(n push.Notification) push.Notification {
	out := n.Clone()
	delete(out, push.FieldTitle)
	delete(out, push.FieldBody)
	delete(out, push.FieldSound)
	out[push.FieldContentAvailable] = true
	out[push.FieldLegacyAvailable] = true
	return out
}

// encodeJSON marshals v without HTML escaping so caller text reaches the
// device exactly as sent.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}
