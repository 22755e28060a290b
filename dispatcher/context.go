/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package dispatcher

import "context"

type ctxKey int

const ctxKeyRequestID ctxKey = iota

// NewContextWithRequestID returns a derived context carrying the request ID of a dispatched call.
// Dispatch uses it for the context passed to the executor.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// GetRequestIDFromContext extracts the request ID of a dispatched call from the context.
// An empty string is returned when the context was not created by Dispatch.
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return id
	}
	return ""
}
