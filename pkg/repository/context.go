package repository

import (
	"context"

	"github.com/stephenafamo/bob"
)

type executorContextKey struct{}

// NewContext stores the executor of a running transaction in ctx
func NewContext(ctx context.Context, executor bob.Executor) context.Context {
	return context.WithValue(ctx, executorContextKey{}, executor)
}

func FromContext(ctx context.Context) bob.Executor {
	if ctx == nil {
		return nil
	}
	if executor, ok := ctx.Value(executorContextKey{}).(bob.Executor); ok {
		return executor
	}
	return nil
}

// Executor returns the executor stored in ctx or def
func Executor(ctx context.Context, def bob.Executor) bob.Executor {
	if executor := FromContext(ctx); executor != nil {
		return executor
	}
	return def
}
