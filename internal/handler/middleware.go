package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/kitchen-engine/internal/identity"
	"github.com/kursadbilgin/kitchen-engine/internal/observability"
)

const HeaderCorrelationID = "X-Correlation-ID"

// RequestContext moves the caller's correlation id and bearer token from the
// request headers into the user context seen by the service layer. It must
// run after the requestid middleware.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := requestCorrelationID(c)
		ctx := observability.WithCorrelationID(c.UserContext(), correlationID)

		if token, ok := identity.ParseAuthorizationHeader(c.Get(fiber.HeaderAuthorization)); ok {
			ctx = identity.WithBearerToken(ctx, strings.Clone(token))
		}

		c.SetUserContext(ctx)
		if correlationID != "" {
			c.Set(HeaderCorrelationID, correlationID)
		}
		return c.Next()
	}
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(HeaderCorrelationID)); value != "" {
		return strings.Clone(value)
	}
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return strings.Clone(value)
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
