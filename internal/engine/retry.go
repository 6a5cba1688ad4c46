package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/reduxgo/redux/pkg/api"
)

// retryWrap wraps the reduce chain with the Retry policy. The first attempt
// runs inline; if it fails, or if the chain defers, execution moves to a
// goroutine via a deferred reduction, which is also what makes a retrying
// action asynchronous from the dispatcher's point of view.
//
// Every attempt re-runs the whole wrapped reducer against a fresh snapshot.
// A reducer that keeps failing runs MaxRetries+1 times before the last
// error surfaces.
func (s *store[S]) retryWrap(d *dispatch[S], inner api.Reducer[S]) api.Reducer[S] {
	policy := d.policies.Retry.Normalized()

	return func(ctx context.Context, state S) (api.Reduction[S], error) {
		red, err := safeReduce(ctx, inner, state)
		if err == nil && !red.IsDeferred() {
			return red, nil
		}

		firstRed, firstErr := red, err
		return api.Deferred(func(ctx context.Context, _ S) (api.Reduction[S], error) {
			var lastErr error
			if firstErr == nil {
				out, cerr := s.resolveChainInline(ctx, firstRed)
				if cerr == nil {
					return out, nil
				}
				lastErr = cerr
			} else {
				lastErr = firstErr
			}

			for attempt := 0; ; attempt++ {
				if policy.MaxRetries != api.UnlimitedRetries && attempt >= policy.MaxRetries {
					return api.NoChange[S](), lastErr
				}

				select {
				case <-ctx.Done():
					return api.NoChange[S](), fmt.Errorf("%w (last attempt: %v)", ctx.Err(), lastErr)
				case <-time.After(policy.Delay(attempt)):
				}

				red, err := safeReduce(ctx, inner, s.State())
				if err == nil {
					out, cerr := s.resolveChainInline(ctx, red)
					if cerr == nil {
						return out, nil
					}
					err = cerr
				}
				lastErr = err
			}
		}), nil
	}
}

// resolveChainInline drives a deferred reduction chain to a concrete
// reduction on the current goroutine, re-reading a fresh snapshot per hop.
func (s *store[S]) resolveChainInline(ctx context.Context, red api.Reduction[S]) (api.Reduction[S], error) {
	for red.IsDeferred() {
		var err error
		red, err = safeContinue(ctx, red.Continuation(), s.State())
		if err != nil {
			return api.NoChange[S](), err
		}
	}
	return red, nil
}
