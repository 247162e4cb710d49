package hook

import "context"

type ctxKey int

const (
	originCtxKey ctxKey = iota + 1
	applyCtxKey
)

// WithOrigin tags every change-log entry written under ctx with the given
// node number. The sync engine sets it once per invocation and threads it
// through; there is no ambient process-wide state.
func WithOrigin(ctx context.Context, node int) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, originCtxKey, node)
}

// Origin returns the origin node carried by ctx, or nil when unknown.
func Origin(ctx context.Context) *int {
	if ctx == nil {
		return nil
	}
	if n, ok := ctx.Value(originCtxKey).(int); ok {
		return &n
	}
	return nil
}

// WithApply marks ctx as running inside the sync engine's apply path, where
// row versions are set explicitly from incoming entries and must not be
// auto-bumped on top.
func WithApply(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, applyCtxKey, true)
}

func IsApply(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	b, _ := ctx.Value(applyCtxKey).(bool)
	return b
}
