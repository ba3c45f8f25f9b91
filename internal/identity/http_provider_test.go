package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/kitchen-engine/internal/domain"
)

func writeRole(w http.ResponseWriter, role string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"role":"` + role + `"}`))
}

func TestHTTPProviderCurrentRole(t *testing.T) {
	t.Parallel()

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		writeRole(w, "Manager")
	}))
	defer server.Close()

	p, err := NewHTTPProvider(server.URL, nil)
	if err != nil {
		t.Fatalf("NewHTTPProvider() error = %v", err)
	}

	role, err := p.CurrentRole(WithBearerToken(context.Background(), "tok-1"))
	if err != nil {
		t.Fatalf("CurrentRole() unexpected error: %v", err)
	}
	if role != domain.RoleManager {
		t.Fatalf("CurrentRole() = %q, want %q", role, domain.RoleManager)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("Authorization = %q, want %q", gotAuth, "Bearer tok-1")
	}
}

func TestHTTPProviderWithoutTokenSkipsLookup(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeRole(w, "admin")
	}))
	defer server.Close()

	p, err := NewHTTPProvider(server.URL, nil)
	if err != nil {
		t.Fatalf("NewHTTPProvider() error = %v", err)
	}

	role, err := p.CurrentRole(context.Background())
	if err != nil {
		t.Fatalf("CurrentRole() unexpected error: %v", err)
	}
	if role != domain.RoleNone {
		t.Fatalf("CurrentRole() = %q, want none", role)
	}
	if calls.Load() != 0 {
		t.Fatalf("identity calls = %d, want 0", calls.Load())
	}
}

func TestHTTPProviderStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		status    int
		wantRole  domain.Role
		wantErr   bool
		wantCalls int32
	}{
		{name: "unauthorized maps to none", status: http.StatusUnauthorized, wantRole: domain.RoleNone, wantCalls: 1},
		{name: "forbidden maps to none", status: http.StatusForbidden, wantRole: domain.RoleNone, wantCalls: 1},
		{name: "bad request is permanent", status: http.StatusBadRequest, wantErr: true, wantCalls: 1},
		{name: "server error is retried once", status: http.StatusInternalServerError, wantErr: true, wantCalls: 2},
		{name: "too many requests is retried once", status: http.StatusTooManyRequests, wantErr: true, wantCalls: 2},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte("identity failed"))
			}))
			defer server.Close()

			p, err := NewHTTPProvider(server.URL, nil)
			if err != nil {
				t.Fatalf("NewHTTPProvider() error = %v", err)
			}

			role, err := p.CurrentRole(WithBearerToken(context.Background(), "tok"))
			if (err != nil) != tc.wantErr {
				t.Fatalf("CurrentRole() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				if !errors.Is(err, domain.ErrDataUnavailable) {
					t.Fatalf("CurrentRole() error = %v, want ErrDataUnavailable", err)
				}
				var lookupErr *LookupError
				if !errors.As(err, &lookupErr) || lookupErr.StatusCode != tc.status {
					t.Fatalf("expected LookupError with status %d, got %v", tc.status, err)
				}
			}
			if role != tc.wantRole && !tc.wantErr {
				t.Fatalf("CurrentRole() = %q, want %q", role, tc.wantRole)
			}
			if got := calls.Load(); got != tc.wantCalls {
				t.Fatalf("identity calls = %d, want %d", got, tc.wantCalls)
			}
		})
	}
}

func TestHTTPProviderRecoversOnRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeRole(w, "admin")
	}))
	defer server.Close()

	p, err := NewHTTPProvider(server.URL, nil)
	if err != nil {
		t.Fatalf("NewHTTPProvider() error = %v", err)
	}

	role, err := p.CurrentRole(WithBearerToken(context.Background(), "tok"))
	if err != nil {
		t.Fatalf("CurrentRole() unexpected error: %v", err)
	}
	if role != domain.RoleAdmin {
		t.Fatalf("CurrentRole() = %q, want admin", role)
	}
}

func TestHTTPProviderTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeRole(w, "admin")
	}))
	defer server.Close()

	client := resty.New()
	client.SetTimeout(30 * time.Millisecond)

	p, err := NewHTTPProviderWithClient(server.URL, client, nil)
	if err != nil {
		t.Fatalf("NewHTTPProviderWithClient() error = %v", err)
	}

	_, err = p.CurrentRole(WithBearerToken(context.Background(), "tok"))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("error = %v, want ErrDataUnavailable", err)
	}
	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
}

func TestNewHTTPProviderRejectsBadEndpoint(t *testing.T) {
	t.Parallel()

	for _, endpoint := range []string{"", "   ", "not a url"} {
		if _, err := NewHTTPProvider(endpoint, nil); err == nil {
			t.Fatalf("NewHTTPProvider(%q) expected error", endpoint)
		}
	}
}

func TestNewHTTPProviderWithClientConfiguresRetry(t *testing.T) {
	t.Parallel()

	client := resty.New()
	client.SetRetryCount(5)

	if _, err := NewHTTPProviderWithClient("http://identity.local/role", client, nil); err != nil {
		t.Fatalf("NewHTTPProviderWithClient() error = %v", err)
	}
	if client.RetryCount != defaultLookupRetries {
		t.Fatalf("RetryCount = %d, want %d", client.RetryCount, defaultLookupRetries)
	}
	if client.RetryWaitTime != retryWait {
		t.Fatalf("RetryWaitTime = %v, want %v", client.RetryWaitTime, retryWait)
	}
}

func TestClassifyLookupCancelledIsNotTransient(t *testing.T) {
	t.Parallel()

	_, err := classifyLookup(nil, context.Canceled)
	if err == nil {
		t.Fatal("classifyLookup() error = nil, want error")
	}
	if IsTransient(err) {
		t.Fatalf("IsTransient(%v) = true, want false", err)
	}
}
