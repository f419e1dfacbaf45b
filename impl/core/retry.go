package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"momento/impl/access"
	"momento/internal/database"
	"momento/lib/sl"
)

// retry runs op with a per-attempt store timeout, retrying infrastructure
// failures with exponential backoff. Rejections and errors marked permanent
// are returned at once. Only reads and idempotent writes go through here.
func retry[T any](ctx context.Context, c *Core, op func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		if attempt > 1 {
			c.metrics.Retry()
		}
		callCtx, cancel := c.storeContext(ctx)
		defer cancel()
		res, err := op(callCtx)
		if _, rejected := access.ReasonOf(err); rejected {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.conf.StoreRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.With(
				sl.Err(err),
				slog.Duration("next", next),
			).Debug("retrying store call")
		}),
	)
	if err == nil {
		return res, nil
	}
	if _, rejected := access.ReasonOf(err); rejected {
		return res, err
	}
	if errors.Is(err, access.ErrStore) || isSentinel(err) {
		return res, err
	}
	return res, fmt.Errorf("%w: %v", access.ErrStore, err)
}

func isSentinel(err error) bool {
	return errors.Is(err, database.ErrNotFound) || errors.Is(err, database.ErrDuplicate)
}
