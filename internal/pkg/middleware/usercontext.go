package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/session"

	appsession "github.com/ManuelReschke/CourseFox/internal/pkg/session"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

// UserContext loads the signed-in user from the app session into the
// request's UserContext. Requests without a valid session are anonymous.
func UserContext(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Goth keeps its own session on /auth/*; ours must not collide with it.
		if strings.HasPrefix(c.Path(), "/auth/") {
			return c.Next()
		}

		usercontext.SetUserContext(c, usercontext.UserContext{})

		sess, err := store.Get(c)
		if err != nil {
			log.Warnf("[Session] Failed to load session: %v", err)
			return c.Next()
		}

		userID := appsession.GetString(sess, usercontext.KeyUserID)
		if userID == "" {
			return c.Next()
		}

		usercontext.SetUserContext(c, usercontext.UserContext{
			UserID:     userID,
			Email:      appsession.GetString(sess, usercontext.KeyEmail),
			Username:   appsession.GetString(sess, usercontext.KeyUsername),
			IsLoggedIn: true,
		})
		return c.Next()
	}
}
