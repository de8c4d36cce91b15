package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// Attribute keys that may carry credentials or personal data are never
// exported on spans.
var blockedAttributeKeys = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
	"set-cookie":    {},
	"email":         {},
	"access_token":  {},
	"refresh_token": {},
	"id_token":      {},
	"code":          {},
	"state":         {},
}

// ExtractContext restores trace context from an inbound carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes drops attributes whose keys are known to hold secrets.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := attrs[:0]
	for _, attr := range attrs {
		key := strings.ToLower(string(attr.Key))
		if _, blocked := blockedAttributeKeys[key]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error suitable for span recording. Raw token exchange
// bodies never reach this path, so the message itself is safe to export.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(redact(err.Error()))
}

func redact(msg string) string {
	lower := strings.ToLower(msg)
	for key := range blockedAttributeKeys {
		if strings.Contains(lower, key+"=") {
			return "redacted error"
		}
	}
	return msg
}
