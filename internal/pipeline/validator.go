// Package pipeline contains the core request processing components for the
// relay: validation, shaping and dispatch to the upstream push API.
package pipeline

import (
	"fmt"

	"github.com/tinywideclouds/go-push-relay/pkg/push"
)

// Mode selects how a notification request is shaped for the upstream API.
type Mode int

const (
	// ModeSingle sends one notification as a JSON object.
	ModeSingle Mode = iota
	// ModeBatch sends a list of notifications as a JSON array.
	ModeBatch
	// ModeGzip sends the ModeBatch body gzip-compressed.
	ModeGzip
	// ModeHeadless sends one silent, background-only notification.
	ModeHeadless
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeBatch:
		return "batch"
	case ModeGzip:
		return "gzip"
	case ModeHeadless:
		return "headless"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Request is a validated notification request, ready for shaping.
type Request struct {
	Mode Mode
	// Notification is set for ModeSingle and ModeHeadless.
	Notification push.Notification
	// Notifications is set for ModeBatch and ModeGzip.
	Notifications []push.Notification
}

const notificationsField = "notifications"

// Validate checks a decoded JSON body against the rules for the given mode.
// It has no side effects; on failure it returns a *push.ValidationError.
func Validate(mode Mode, body any) (*Request, error) {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, &push.ValidationError{Reason: "Invalid JSON payload."}
	}

	switch mode {
	case ModeSingle, ModeHeadless:
		n := push.Notification(obj)
		if !n.HasRecipient() {
			return nil, &push.ValidationError{Reason: "Missing required field: to."}
		}
		return &Request{Mode: mode, Notification: n}, nil

	case ModeBatch, ModeGzip:
		items, ok := obj[notificationsField].([]any)
		if !ok {
			return nil, &push.ValidationError{Reason: "Missing or invalid notifications field."}
		}
		if len(items) == 0 {
			return nil, &push.ValidationError{Reason: "The notifications field must contain at least one notification."}
		}
		batch := make([]push.Notification, 0, len(items))
		for i, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, &push.ValidationError{Reason: fmt.Sprintf("notifications[%d]: must be an object.", i)}
			}
			n := push.Notification(m)
			if !n.HasRecipient() {
				return nil, &push.ValidationError{Reason: fmt.Sprintf("notifications[%d]: missing required field: to.", i)}
			}
			batch = append(batch, n)
		}
		return &Request{Mode: mode, Notifications: batch}, nil

	default:
		return nil, fmt.Errorf("unsupported mode %s", mode)
	}
}
