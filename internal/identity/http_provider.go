package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultLookupTimeout = 3 * time.Second
	defaultLookupRetries = 1
	retryWait            = 100 * time.Millisecond
)

type roleResponse struct {
	Role string `json:"role"`
}

// HTTPProvider asks the identity service which role the bearer token carries.
type HTTPProvider struct {
	client   *resty.Client
	endpoint string
	retries  int
	logger   *zap.Logger
}

func NewHTTPProvider(endpoint string, logger *zap.Logger) (*HTTPProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultLookupTimeout)

	return NewHTTPProviderWithClient(endpoint, client, logger)
}

// NewHTTPProviderWithClient takes over client's retry settings: a lookup is
// retried once, and only when the failure is transient.
func NewHTTPProviderWithClient(endpoint string, client *resty.Client, logger *zap.Logger) (*HTTPProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("identity endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid identity endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultLookupTimeout)
	}

	p := &HTTPProvider{
		client:   client,
		endpoint: trimmedEndpoint,
		retries:  defaultLookupRetries,
		logger:   logger,
	}
	client.
		SetRetryCount(p.retries).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(retryWait).
		AddRetryCondition(func(response *resty.Response, err error) bool {
			_, lookupErr := classifyLookup(response, err)
			return IsTransient(lookupErr)
		}).
		AddRetryHook(func(response *resty.Response, err error) {
			_, lookupErr := classifyLookup(response, err)
			attempt := 0
			if response != nil && response.Request != nil {
				attempt = response.Request.Attempt
			}
			p.logger.Warn("identity lookup failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(lookupErr),
			)
		})

	return p, nil
}

// CurrentRole resolves the caller's role. A missing token or a rejected
// token yields RoleNone. Lookup failures that outlive the retry surface
// as ErrDataUnavailable.
func (p *HTTPProvider) CurrentRole(ctx context.Context) (domain.Role, error) {
	if p == nil || p.client == nil {
		return domain.RoleNone, fmt.Errorf("identity provider is not initialized")
	}

	token, ok := BearerTokenFromContext(ctx)
	if !ok {
		return domain.RoleNone, nil
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Accept", "application/json").
		SetResult(&roleResponse{}).
		Get(p.endpoint)

	role, err := classifyLookup(response, err)
	if err != nil {
		return domain.RoleNone, fmt.Errorf("%w: %w", domain.ErrDataUnavailable, err)
	}
	return role, nil
}

// classifyLookup turns one attempt's outcome into a role or a LookupError.
// Rejected tokens resolve to RoleNone rather than an error.
func classifyLookup(response *resty.Response, err error) (domain.Role, error) {
	if err != nil {
		return domain.RoleNone, &LookupError{
			Message:   "identity request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return domain.RoleNone, &LookupError{
			Message:   "identity service returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return domain.RoleNone, nil
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		if body, ok := response.Result().(*roleResponse); ok {
			return domain.ParseRole(body.Role), nil
		}
		return domain.RoleNone, nil
	}

	return domain.RoleNone, &LookupError{
		StatusCode: statusCode,
		Message:    lookupErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func lookupErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("identity service returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
