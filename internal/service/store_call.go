package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultStoreTimeout = 5 * time.Second
	defaultStoreRetries = 1
	storeRetryDelay     = 50 * time.Millisecond
)

// StoreOptions configures how storage calls are bounded and retried.
type StoreOptions struct {
	Timeout time.Duration
	Retries int
}

// storePolicy bounds every persistence call: each attempt runs under its own
// timeout and transient failures are retried a fixed number of times.
type storePolicy struct {
	timeout time.Duration
	retries int
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *zap.Logger
}

func newStorePolicy(opts StoreOptions, logger *zap.Logger) storePolicy {
	timeout, retries := opts.Timeout, opts.Retries
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	if retries < 0 {
		retries = defaultStoreRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return storePolicy{
		timeout: timeout,
		retries: retries,
		sleep:   sleepWithContext,
		logger:  logger,
	}
}

// callStore runs fn under p. Business errors from the domain package are
// returned untouched; anything else that survives the retries becomes
// ErrDataUnavailable.
func callStore[T any](ctx context.Context, p storePolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, storeRetryDelay); err != nil {
				return zero, fmt.Errorf("%w: %s: %w", domain.ErrDataUnavailable, op, err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		value, err := fn(callCtx)
		cancel()
		if err == nil {
			return value, nil
		}
		if isDomainError(err) {
			return zero, err
		}

		lastErr = err
		if ctx.Err() != nil || !isTransientStoreError(err) {
			break
		}
		p.logger.Warn("store call failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return zero, fmt.Errorf("%w: %s: %w", domain.ErrDataUnavailable, op, lastErr)
}

// execStore is callStore for calls without a result.
func execStore(ctx context.Context, p storePolicy, op string, fn func(ctx context.Context) error) error {
	_, err := callStore(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func isDomainError(err error) bool {
	if domain.IsRejection(err) {
		return true
	}
	for _, target := range []error{
		domain.ErrValidation,
		domain.ErrNotFound,
		domain.ErrConflict,
		domain.ErrForbidden,
		domain.ErrDataUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// isTransientStoreError reports whether a storage error may succeed on retry.
func isTransientStoreError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := pgErr.Code
		// 08: connection exception, 40001: serialization failure,
		// 40P01: deadlock, 57P01: admin shutdown.
		return strings.HasPrefix(code, "08") || code == "40001" || code == "40P01" || code == "57P01"
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
