package apiv1

import "context"

type ctxKey struct{}

// WithPrincipal records who authenticated the request.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, ctxKey{}, principal)
}

// Principal returns the authenticated caller, or "api" when unknown.
func Principal(ctx context.Context) string {
	if p, ok := ctx.Value(ctxKey{}).(string); ok && p != "" {
		return p
	}
	return "api"
}
