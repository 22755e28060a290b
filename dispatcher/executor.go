/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package dispatcher

import "context"

// Executor performs the actual API call for an admitted request.
type Executor[I, O any] interface {
	Execute(ctx context.Context, input I) (O, error)
}

// ExecutorFunc is an adapter to allow the use of ordinary functions as Executor.
type ExecutorFunc[I, O any] func(ctx context.Context, input I) (O, error)

// Execute implements Executor.
func (f ExecutorFunc[I, O]) Execute(ctx context.Context, input I) (O, error) {
	return f(ctx, input)
}
