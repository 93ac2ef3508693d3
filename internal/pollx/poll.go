// Package pollx implements the fixed-interval, deadline-bound polling loop
// used by every "wait for the remote side" step of the upload pipeline.
package pollx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/intunedeploy/internal/common"
	"github.com/sethvargo/go-retry"
)

var errNotSatisfied = errors.New("condition not satisfied")

// Until calls fn every interval until it reports done, until it returns an
// error, or until timeout elapses.
//
// fn returning (false, nil) means "keep polling"; any non-nil error is fatal
// and is returned immediately without further attempts. When the timeout is
// exhausted before the condition holds, the returned error matches
// common.ErrTimeout. Context cancellation is honoured between attempts.
func Until(ctx context.Context, interval, timeout time.Duration, fn func(ctx context.Context) (bool, error)) error {
	b := retry.WithMaxDuration(timeout, retry.NewConstant(interval))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if !done {
			return retry.RetryableError(errNotSatisfied)
		}
		return nil
	})

	if errors.Is(err, errNotSatisfied) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", common.ErrTimeout, timeout)
	}
	return err
}
