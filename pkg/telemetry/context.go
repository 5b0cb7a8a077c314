package telemetry

import (
	"context"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	clientContextKey contextKey = "telemetry_client"
)

// WithClient adds a telemetry client to the context
func WithClient(ctx context.Context, client *Client) context.Context {
	return context.WithValue(ctx, clientContextKey, client)
}

// FromContext retrieves the telemetry client from context
func FromContext(ctx context.Context) *Client {
	if client, ok := ctx.Value(clientContextKey).(*Client); ok {
		return client
	}
	return nil
}

// ReportEvent reports an event through the client stored in ctx, if any.
func ReportEvent(ctx context.Context, eventName string, data EventData) error {
	if client := FromContext(ctx); client != nil {
		return client.ReportEvent(ctx, eventName, data)
	}
	return nil
}

// ReportError reports an error through the client stored in ctx, if any.
func ReportError(ctx context.Context, errorName string, err error) error {
	if client := FromContext(ctx); client != nil {
		return client.ReportError(ctx, errorName, err)
	}
	return nil
}
