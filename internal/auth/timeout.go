// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// CodeTimeout marks a store or hashing step that exceeded its bound.
const CodeTimeout = "AUTH_TIMEOUT"

// bounded runs fn on its own goroutine and gives up once d elapses or ctx
// is cancelled. fn receives the bounded context; work that ignores it keeps
// running in the background until it returns.
func bounded[T any](ctx context.Context, d time.Duration, operation string, fn func(context.Context) (T, error)) (T, error) {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := fn(ctx)
		done <- result{val, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, oops.Code(CodeTimeout).
			With("operation", operation).
			With("limit", d.String()).
			Wrap(ctx.Err())
	}
}

func isTimeout(err error) bool {
	if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() == CodeTimeout {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
