package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kode4food/cascade/pkg/log"
)

func (r *run) invoke(ctx context.Context, step *Step, in Inputs) (any, error) {
	if step.Retry == nil || step.Retry.MaxRetries <= 0 {
		return r.call(ctx, step, in)
	}

	var out any
	op := func() error {
		res, err := r.call(ctx, step, in)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		out = res
		return nil
	}
	notify := func(err error, delay time.Duration) {
		slog.Debug("Retrying step",
			log.RunID(r.state.RunID()),
			log.StepName(step.Name),
			slog.Duration("delay", delay),
			log.Error(err))
	}

	b := backoff.WithContext(step.Retry.backOff(), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return out, nil
}

// call runs the step function once, bounding it by its timeout and turning
// a panic into an error
func (r *run) call(
	parent context.Context, step *Step, in Inputs,
) (out any, err error) {
	ctx := parent
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = r.flow.stepTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrStepPanicked, rec)
		}
	}()

	out, err = step.Func(ctx, r.state, in)
	if err != nil && timeout > 0 && parent.Err() == nil &&
		errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %s after %s", ErrStepTimeout, step.Name, timeout)
	}
	return out, err
}
