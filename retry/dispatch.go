/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-apidispatch/dispatcher"
)

// Dispatcher is the part of *dispatcher.Dispatcher used by DispatchWithRetry.
type Dispatcher[I, O any] interface {
	Dispatch(ctx context.Context, input I) (dispatcher.Result[O], error)
}

var errPenaltyRejected = errors.New(dispatcher.PenaltyMessage)

// DispatchWithRetry dispatches input and repeats the call according to p while it is rejected by a penalty.
//
// The result of the last attempt is returned, so when the policy gives up the result is still
// StatusPenaltyRejected with a nil error. Executor failures are not retried.
// A non-nil error means ctx was done while waiting for a token or between attempts.
func DispatchWithRetry[I, O any](
	ctx context.Context, d Dispatcher[I, O], input I, p Policy, notify backoff.Notify,
) (dispatcher.Result[O], error) {
	var res dispatcher.Result[O]
	isRetryable := func(err error) bool {
		return errors.Is(err, errPenaltyRejected)
	}
	err := DoWithRetry(ctx, p, isRetryable, notify, func(ctx context.Context) error {
		var dErr error
		if res, dErr = d.Dispatch(ctx, input); dErr != nil {
			return dErr
		}
		if res.Status == dispatcher.StatusPenaltyRejected {
			return errPenaltyRejected
		}
		return nil
	})
	if err != nil && !errors.Is(err, errPenaltyRejected) {
		return res, err
	}
	return res, nil
}
