// Package gate adapts token validation to the three inbound transports:
// HTTP, GraphQL-over-HTTP and WebSocket/STOMP. All three share one
// contract: extract a candidate token, validate it, resolve a user id, and
// either populate an authenticated context or reject in the way the
// transport expects.
package gate

import (
	"context"
)

// contextKey is an unexported type for context keys in this package.
// A distinct type prevents collisions with keys from other packages.
type contextKey int

const (
	userIDKey contextKey = iota
	authenticatedKey
	clientIPKey
	userAgentKey
)

// ContextWithOutcome stores a successful auth outcome plus request metadata
// in the context.
func ContextWithOutcome(ctx context.Context, outcome Outcome, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, outcome.UserID)
	ctx = context.WithValue(ctx, authenticatedKey, outcome.Authenticated)
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	ctx = context.WithValue(ctx, userAgentKey, userAgent)
	return ctx
}

// UserIDFromContext retrieves the authenticated user id from the context.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// IsAuthenticated reports whether the context carries an authenticated
// identity.
func IsAuthenticated(ctx context.Context) bool {
	ok, _ := ctx.Value(authenticatedKey).(bool)
	return ok
}

// ClientIPFromContext retrieves the client IP recorded by the HTTP gate.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// UserAgentFromContext retrieves the user agent recorded by the HTTP gate.
func UserAgentFromContext(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey).(string)
	return ua
}
