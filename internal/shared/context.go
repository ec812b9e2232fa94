package shared

import "context"

type requestMetaKey struct{}

// RequestMeta carries request scoped attributes that end up in operation logs.
type RequestMeta struct {
	RequestID string
	RemoteIP  string
}

// ContextWithRequestMeta stores request metadata in context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext extracts request metadata from context.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}
