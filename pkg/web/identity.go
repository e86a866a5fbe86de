package web

import (
	"strings"

	"github.com/gofiber/fiber/v3"
)

// UserIDHeader carries the authenticated caller, set by the upstream gateway.
const UserIDHeader = "X-User-ID"

const userIDKey = "approvals.user_id"

// RequireUser rejects requests without a caller identity.
func RequireUser() fiber.Handler {
	return func(c fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get(UserIDHeader))
		if userID == "" {
			return unauthorized(c, UserIDHeader+" header is required")
		}

		c.Locals(userIDKey, userID)

		return c.Next()
	}
}

// CurrentUser returns the caller stored by RequireUser.
func CurrentUser(c fiber.Ctx) string {
	userID, _ := c.Locals(userIDKey).(string)

	return userID
}

// callerID is CurrentUser for routes mounted without RequireUser.
func callerID(c fiber.Ctx) string {
	if userID := CurrentUser(c); userID != "" {
		return userID
	}

	return strings.TrimSpace(c.Get(UserIDHeader))
}
