package push

import (
	"encoding/json"
	"maps"
)

// Field names the relay itself inspects or rewrites. Every other field of a
// notification is forwarded untouched.
const (
	FieldTo               = "to"
	FieldTitle            = "title"
	FieldBody             = "body"
	FieldSound            = "sound"
	FieldData             = "data"
	FieldContentAvailable = "_contentAvailable"
	FieldLegacyAvailable  = "content_available"
)

// Notification is a single Expo push message as decoded from the caller's
// JSON. It is kept as a generic object so unknown Expo fields (ttl,
// priority, badge, channelId, ...) survive the round trip.
type Notification map[string]any

// HasRecipient reports whether "to" holds a non-empty token string or a
// non-empty list of non-empty token strings.
func (n Notification) HasRecipient() bool {
	switch to := n[FieldTo].(type) {
	case string:
		return to != ""
	case []any:
		if len(to) == 0 {
			return false
		}
		for _, t := range to {
			s, ok := t.(string)
			if !ok || s == "" {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Clone returns a shallow copy; nested values such as "data" are shared.
func (n Notification) Clone() Notification {
	return maps.Clone(n)
}

// Payload is a notification request after shaping: the exact bytes to put on
// the wire plus how they are encoded.
type Payload struct {
	Body []byte
	// Compressed is true when Body is gzip-encoded JSON.
	Compressed bool
	// Count is the number of notifications carried.
	Count int
}

// DeliveryResult pairs the upstream HTTP status with its response body.
// Body is always valid JSON: the upstream document itself, or the upstream
// text encoded as a JSON string when it was not JSON.
type DeliveryResult struct {
	StatusCode int
	Body       json.RawMessage
}

// NewDeliveryResult builds a result from a raw upstream response body.
func NewDeliveryResult(status int, raw []byte) *DeliveryResult {
	if json.Valid(raw) {
		return &DeliveryResult{StatusCode: status, Body: json.RawMessage(raw)}
	}
	quoted, _ := json.Marshal(string(raw))
	return &DeliveryResult{StatusCode: status, Body: quoted}
}
