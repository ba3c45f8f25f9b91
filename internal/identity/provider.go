package identity

import (
	"context"
	"strings"

	"github.com/kursadbilgin/kitchen-engine/internal/domain"
)

// RoleProvider resolves the role of the caller carried by ctx.
type RoleProvider interface {
	CurrentRole(ctx context.Context) (domain.Role, error)
}

type bearerTokenKey struct{}

func WithBearerToken(ctx context.Context, token string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bearerTokenKey{}, strings.TrimSpace(token))
}

func BearerTokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	token, ok := ctx.Value(bearerTokenKey{}).(string)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// ParseAuthorizationHeader extracts the token from a "Bearer <token>" header value.
func ParseAuthorizationHeader(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// StaticProvider returns a fixed role. It backs local runs and tests.
type StaticProvider struct {
	Role domain.Role
}

func (p StaticProvider) CurrentRole(context.Context) (domain.Role, error) {
	if p.Role == "" {
		return domain.RoleNone, nil
	}
	return domain.ParseRole(p.Role.String()), nil
}
