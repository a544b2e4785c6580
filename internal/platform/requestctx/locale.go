// Package requestctx carries request-scoped values across transport layers.
package requestctx

import "context"

// localeContextKey is the context key for the negotiated response locale.
type localeContextKey struct{}

// WithLocale stores the negotiated locale in context.
func WithLocale(ctx context.Context, locale string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, localeContextKey{}, locale)
}

// LocaleFromContext returns the locale stored in context, or "".
func LocaleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(localeContextKey{}).(string)
	return value
}
