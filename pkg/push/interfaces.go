// Package push contains the public interfaces and domain models for the
// push relay.
package push

import (
	"context"
)

// Deliverer defines the contract for a component that sends a shaped payload
// to the upstream push API (e.g., Expo's /push/send endpoint).
type Deliverer interface {
	// Deliver performs exactly one outbound call and returns the upstream
	// status and body. A non-2xx upstream status is NOT an error.
	Deliver(ctx context.Context, payload *Payload) (*DeliveryResult, error)
}

// FileStore defines the contract for persisting decrypted uploads.
type FileStore interface {
	// Save writes data under the given object name and returns the
	// location the caller can use to find it again (a path or a URI).
	Save(ctx context.Context, name string, data []byte) (string, error)
}
