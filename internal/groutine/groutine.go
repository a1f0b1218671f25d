// Package groutine starts goroutines carrying a name, both as a pprof label
// (visible in goroutine profiles and debuggers) and as a context value.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey struct{}

// LabelKey is the pprof label holding the goroutine name.
const LabelKey = "goroutine_name"

// Go runs fn on a new goroutine named name. A nil parent means context.Background().
//
//	groutine.Go(ctx, "session-loop", func(ctx context.Context) {
//	    // ...
//	})
func Go(parent context.Context, name string, fn func(ctx context.Context)) {
	if parent == nil {
		parent = context.Background()
	}

	go pprof.Do(parent, pprof.Labels(LabelKey, name), func(ctx context.Context) {
		fn(context.WithValue(ctx, ctxKey{}, name))
	})
}

// Name returns the name given to the goroutine that owns ctx, or "".
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(ctxKey{}).(string)
	return name
}
