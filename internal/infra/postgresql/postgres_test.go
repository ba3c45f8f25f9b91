package postgresql

import (
	"testing"
	"time"
)

func TestPoolOptionsNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   PoolOptions
		want PoolOptions
	}{
		{name: "zero value uses defaults", in: PoolOptions{}, want: DefaultPoolOptions()},
		{
			name: "idle capped at open",
			in:   PoolOptions{MaxOpenConns: 4, MaxIdleConns: 10, ConnMaxLifetime: time.Minute, SlowQueryThreshold: time.Second},
			want: PoolOptions{MaxOpenConns: 4, MaxIdleConns: 4, ConnMaxLifetime: time.Minute, SlowQueryThreshold: time.Second},
		},
		{
			name: "explicit values kept",
			in:   PoolOptions{MaxOpenConns: 50, MaxIdleConns: 10, ConnMaxLifetime: 30 * time.Minute, SlowQueryThreshold: 200 * time.Millisecond},
			want: PoolOptions{MaxOpenConns: 50, MaxIdleConns: 10, ConnMaxLifetime: 30 * time.Minute, SlowQueryThreshold: 200 * time.Millisecond},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.in.normalize(); got != tt.want {
				t.Fatalf("normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
