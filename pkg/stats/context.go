package stats

import (
	"context"
)

type contextKey struct{}

// NewContext returns a copy of ctx carrying statser. A nil statser leaves ctx unchanged, so the
// closest enclosing statser keeps being used.
func NewContext(ctx context.Context, statser Statser) context.Context {
	if statser == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, statser)
}

// FromContext returns the Statser carried by ctx, or a NullStatser so callers never need a nil check.
func FromContext(ctx context.Context) Statser {
	if statser, ok := ctx.Value(contextKey{}).(Statser); ok {
		return statser
	}
	return NewNullStatser()
}
