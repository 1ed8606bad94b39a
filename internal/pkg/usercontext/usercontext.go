package usercontext

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserContext represents the signed-in user of a request. UserID is the
// opaque id issued at login and is the only identity billing ever sees.
type UserContext struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	IsLoggedIn bool   `json:"is_logged_in"`
}

// UserIDFor builds the opaque user id for an identity provider account.
func UserIDFor(provider, providerUserID string) string {
	return strings.ToLower(provider) + "-" + providerUserID
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(LocalsKey).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// SetUserContext stores uc for the rest of the request.
func SetUserContext(c *fiber.Ctx, uc UserContext) {
	c.Locals(LocalsKey, uc)
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetUserID returns the current user's ID, or "" if not logged in
func GetUserID(c *fiber.Ctx) string {
	return GetUserContext(c).UserID
}
