package push

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports a malformed or incomplete caller request.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// EncodingError reports a local serialization or compression failure.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string { return fmt.Sprintf("failed to encode payload: %v", e.Err) }
func (e *EncodingError) Unwrap() error { return e.Err }

// DecryptionError reports a cipher or post-decryption decoding failure.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string { return fmt.Sprintf("decryption failed: %v", e.Err) }
func (e *DecryptionError) Unwrap() error { return e.Err }

// StorageError reports a failure to persist a decrypted upload.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("failed to save file: %v", e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// UpstreamError reports that no response could be obtained from the push
// API at all. Upstream responses with an error status are relayed instead.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("push service unreachable: %v", e.Err) }
func (e *UpstreamError) Unwrap() error { return e.Err }

// RoutingError reports an unknown path (404) or a disallowed method (405).
type RoutingError struct {
	Status int
	Reason string
}

func (e *RoutingError) Error() string { return e.Reason }

// HTTPStatus maps an error from the relay pipeline to the status code the
// caller receives.
func HTTPStatus(err error) int {
	var (
		validation *ValidationError
		encoding   *EncodingError
		decryption *DecryptionError
		storage    *StorageError
		upstream   *UpstreamError
		routing    *RoutingError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation), errors.As(err, &encoding), errors.As(err, &decryption):
		return http.StatusBadRequest
	case errors.As(err, &storage):
		return http.StatusInternalServerError
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	case errors.As(err, &routing):
		return routing.Status
	default:
		return http.StatusInternalServerError
	}
}
