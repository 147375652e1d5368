package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// Payment fields that must never appear in cleartext: gateway credentials and
// references, callback signatures, and the free-text dispute fields clients
// submit.
var sensitiveKeys = map[string]struct{}{
	"gateway_ref":      {},
	"signature":        {},
	"secret":           {},
	"api_key":          {},
	"dispute_reason":   {},
	"resolution_notes": {},
	"payment_link":     {},
}

// IsSensitive reports whether a log key carries payment data that must be
// masked before emission.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// Field returns a slog.Attr, masking the value when the key is sensitive.
// Empty values pass through unchanged to avoid noise.
func Field(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsSensitive(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
