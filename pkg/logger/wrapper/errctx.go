package wrap

import (
	"context"
	"errors"
)

// errorWithLogCtx carries the log context captured where the error occurred,
// so the logging call site can report it even after the error crossed layers.
type errorWithLogCtx struct {
	err    error
	logCtx LogCtx
}

func (e *errorWithLogCtx) Error() string {
	return e.err.Error()
}

func (e *errorWithLogCtx) Unwrap() error {
	return e.err
}

// ErrorCtx restores the log context captured inside err onto ctx. Errors
// without a captured context leave ctx untouched.
func ErrorCtx(ctx context.Context, err error) context.Context {
	var e *errorWithLogCtx
	if errors.As(err, &e) && e != nil {
		return context.WithValue(ctx, LogCtxKey, e.logCtx)
	}
	return ctx
}
