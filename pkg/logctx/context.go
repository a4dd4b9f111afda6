/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logctx carries the ambient per-operation values that are not
// part of an engine call's explicit arguments but that the audit sink and
// structured logging still want: the caller's IP address and a
// correlation id threaded through from the inbound request. HTTP framing,
// routing, and correlation-id extraction live in internal/api; this
// package is only the context plumbing between whatever sets those values
// and the engines that read them.
package logctx

import (
	"context"

	"github.com/go-logr/logr"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for ambient request fields.
const (
	// ContextKeyClientIP holds the caller's IP address.
	ContextKeyClientIP contextKey = "client_ip"

	// ContextKeyCorrelationID holds a caller-supplied or generated
	// correlation id, propagated into audit records and log lines.
	ContextKeyCorrelationID contextKey = "correlation_id"

	// ContextKeyRequestID identifies the individual request, distinct from
	// the correlation id which may span several requests.
	ContextKeyRequestID contextKey = "request_id"
)

// allContextKeys lists all context keys that should be extracted for logging.
var allContextKeys = []contextKey{
	ContextKeyClientIP,
	ContextKeyCorrelationID,
	ContextKeyRequestID,
}

// WithClientIP returns a new context with the caller's IP address set.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, ContextKeyClientIP, ip)
}

// WithCorrelationID returns a new context with the correlation id set.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, ContextKeyCorrelationID, correlationID)
}

// WithRequestID returns a new context with the request id set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Fields holds all ambient context fields in one value, for bulk setting.
type Fields struct {
	ClientIP      string
	CorrelationID string
	RequestID     string
}

// WithFields returns a new context with multiple ambient fields set at
// once. Only non-empty values are set.
func WithFields(ctx context.Context, fields *Fields) context.Context {
	if fields == nil {
		return ctx
	}
	ctx = WithClientIP(ctx, fields.ClientIP)
	ctx = WithCorrelationID(ctx, fields.CorrelationID)
	ctx = WithRequestID(ctx, fields.RequestID)
	return ctx
}

// ExtractFields extracts all ambient fields from a context.
func ExtractFields(ctx context.Context) Fields {
	return Fields{
		ClientIP:      ClientIP(ctx),
		CorrelationID: CorrelationID(ctx),
		RequestID:     RequestID(ctx),
	}
}

// LogrValues extracts context values and returns them as key-value pairs
// suitable for use with logr.Logger.WithValues(). Only non-empty values
// are included.
func LogrValues(ctx context.Context) []interface{} {
	var values []interface{}
	for _, key := range allContextKeys {
		if v := ctx.Value(key); v != nil {
			if s, ok := v.(string); ok && s != "" {
				values = append(values, string(key), s)
			}
		}
	}
	return values
}

// LoggerWithContext returns a logger enriched with all ambient context values.
func LoggerWithContext(log logr.Logger, ctx context.Context) logr.Logger {
	values := LogrValues(ctx)
	if len(values) == 0 {
		return log
	}
	return log.WithValues(values...)
}

// ClientIP extracts the caller's IP address from the context.
func ClientIP(ctx context.Context) string {
	if v := ctx.Value(ContextKeyClientIP); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// CorrelationID extracts the correlation id from the context.
func CorrelationID(ctx context.Context) string {
	if v := ctx.Value(ContextKeyCorrelationID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RequestID extracts the request id from the context.
func RequestID(ctx context.Context) string {
	if v := ctx.Value(ContextKeyRequestID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
