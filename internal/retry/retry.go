// Package retry runs an operation again after failures with linear backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"invoicedesk/internal/domain"
	"invoicedesk/internal/logging"
)

// DefaultBaseDelay wait before the second attempt; the n-th wait is n × base.
const DefaultBaseDelay = time.Second

// Executor retries failing operations. The zero value is not usable, use New.
type Executor struct {
	baseDelay time.Duration
	log       logging.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

type Option func(*Executor)

// WithSleep replaces the backoff wait, used by tests to avoid real delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = fn }
}

func New(baseDelay time.Duration, log logging.Logger, opts ...Option) *Executor {
	if baseDelay < 0 {
		baseDelay = 0
	}
	if log == nil {
		log = logging.Nop()
	}
	e := &Executor{baseDelay: baseDelay, log: log, sleep: sleepCtx}
	for _, o := range opts {
		o(e)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retryable reports whether err is worth another attempt.
// Validation and not-found errors are final, as is context cancellation.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case domain.IsValidationError(err), domain.IsNotFoundError(err):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// Run calls op up to maxAttempts times. After attempt i fails it waits
// i × baseDelay; there is no wait after the last attempt. The last error is
// returned unchanged. maxAttempts below 1 means a single attempt.
func (e *Executor) Run(ctx context.Context, name string, maxAttempts int, op func(ctx context.Context) error) error {
	_, err := Do(ctx, e, name, maxAttempts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do is Run for operations returning a value.
func Do[T any](ctx context.Context, e *Executor, name string, maxAttempts int, op func(ctx context.Context) (T, error)) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var (
		res T
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err = op(ctx)
		if err == nil {
			return res, nil
		}
		e.log.Warn("operation failed",
			"op", name,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)
		if !Retryable(err) || attempt == maxAttempts {
			return res, err
		}
		if serr := e.sleep(ctx, time.Duration(attempt)*e.baseDelay); serr != nil {
			// отмена во время ожидания: отдаём последнюю ошибку операции
			return res, err
		}
	}
	return res, err
}
