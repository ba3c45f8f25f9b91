package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kursadbilgin/kitchen-engine/internal/domain"
)

func testStorePolicy(retries int) storePolicy {
	p := newStorePolicy(StoreOptions{Timeout: time.Second, Retries: retries}, nil)
	p.sleep = noSleep
	return p
}

func TestCallStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		errs      []error
		retries   int
		wantErr   error
		wantCalls int
	}{
		{name: "success", wantCalls: 1, retries: 1},
		{name: "transient then success", errs: []error{driver.ErrBadConn}, retries: 1, wantCalls: 2},
		{name: "transient exhausted", errs: []error{driver.ErrBadConn, driver.ErrBadConn}, retries: 1, wantErr: domain.ErrDataUnavailable, wantCalls: 2},
		{name: "no retry budget", errs: []error{driver.ErrBadConn}, retries: 0, wantErr: domain.ErrDataUnavailable, wantCalls: 1},
		{name: "permanent failure not retried", errs: []error{errors.New("syntax error")}, retries: 1, wantErr: domain.ErrDataUnavailable, wantCalls: 1},
		{name: "domain rejection passes through", errs: []error{fmt.Errorf("%w: step x", domain.ErrAlreadyActive)}, retries: 1, wantErr: domain.ErrAlreadyActive, wantCalls: 1},
		{name: "not found passes through", errs: []error{domain.ErrNotFound}, retries: 1, wantErr: domain.ErrNotFound, wantCalls: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			got, err := callStore(context.Background(), testStorePolicy(tt.retries), "test op", func(ctx context.Context) (int, error) {
				calls++
				if _, ok := ctx.Deadline(); !ok {
					t.Error("store call should run with a deadline")
				}
				if calls <= len(tt.errs) {
					return 0, tt.errs[calls-1]
				}
				return 42, nil
			})

			if calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr == nil {
				if err != nil || got != 42 {
					t.Fatalf("callStore() = %d, %v, want 42, nil", got, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("callStore() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == domain.ErrAlreadyActive && errors.Is(err, domain.ErrDataUnavailable) {
				t.Fatal("rejections must not be wrapped as ErrDataUnavailable")
			}
		})
	}
}

func TestCallStoreStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := execStore(ctx, testStorePolicy(3), "test op", func(ctx context.Context) error {
		calls++
		cancel()
		return driver.ErrBadConn
	})
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("execStore() error = %v, want ErrDataUnavailable", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestIsTransientStoreError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "bad conn", err: fmt.Errorf("query: %w", driver.ErrBadConn), want: true},
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}, want: true},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "network", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, want: true},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		if got := isTransientStoreError(tt.err); got != tt.want {
			t.Fatalf("%s: isTransientStoreError() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
