package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type correlationKey struct{}

type requestUserKey struct{}

// RequestUser carries the authenticated caller extracted by the auth
// middleware. BypassQa reflects the role claim; services consume it as an
// already-made authorization decision.
type RequestUser struct {
	UserID   uuid.UUID
	Roles    []string
	BypassQa bool
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation id bound to ctx, generating a fresh
// one when the context carries none so log lines are always correlatable.
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey{}).(string); ok && v != "" {
		return v
	}
	return uuid.NewString()
}

func WithRequestUser(ctx context.Context, u *RequestUser) context.Context {
	return context.WithValue(ctx, requestUserKey{}, u)
}

func GetRequestUser(ctx context.Context) *RequestUser {
	if u, ok := ctx.Value(requestUserKey{}).(*RequestUser); ok {
		return u
	}
	return nil
}
