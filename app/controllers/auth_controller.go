package controllers

import (
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/markbates/goth"
	"github.com/sujit-baniya/flash"

	appsession "github.com/ManuelReschke/CourseFox/internal/pkg/session"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

// CompleteUserAuthFunc finishes an OAuth flow and returns the provider user.
type CompleteUserAuthFunc func(c *fiber.Ctx) (goth.User, error)

// AuthController logs users in through the configured identity providers.
type AuthController struct {
	store        *session.Store
	completeAuth CompleteUserAuthFunc
	homeURL      string
}

// NewAuthController creates an auth controller. After login users land on homeURL.
func NewAuthController(store *session.Store, completeAuth CompleteUserAuthFunc, homeURL string) *AuthController {
	if homeURL == "" {
		homeURL = "/"
	}
	return &AuthController{store: store, completeAuth: completeAuth, homeURL: homeURL}
}

// HandleLogin lists the identity providers a user can sign in with.
func (ac *AuthController) HandleLogin(c *fiber.Ctx) error {
	names := make([]string, 0, len(goth.GetProviders()))
	for name := range goth.GetProviders() {
		names = append(names, name)
	}
	sort.Strings(names)

	providers := make([]fiber.Map, 0, len(names))
	for _, name := range names {
		providers = append(providers, fiber.Map{"name": name, "url": "/auth/" + name})
	}
	return c.JSON(fiber.Map{
		"logged_in": usercontext.IsLoggedIn(c),
		"providers": providers,
	})
}

// HandleOAuthCallback completes the provider flow and logs the user in
func (ac *AuthController) HandleOAuthCallback(c *fiber.Ctx) error {
	u, err := ac.completeAuth(c)
	if err != nil {
		log.Warnf("[OAuth] Login failed: %v", err)
		return respondError(c, fiber.StatusBadRequest, "oauth_failed", "login with the identity provider failed")
	}
	if u.Provider == "" || u.UserID == "" {
		return respondError(c, fiber.StatusBadRequest, "oauth_failed", "identity provider returned no user id")
	}

	sess, err := ac.store.Get(c)
	if err != nil {
		return respondError(c, fiber.StatusInternalServerError, "session_failed", "session init failed")
	}
	// Fresh session id on login
	if err := sess.Regenerate(); err != nil {
		return respondError(c, fiber.StatusInternalServerError, "session_failed", "session init failed")
	}

	userID := usercontext.UserIDFor(u.Provider, u.UserID)
	values := map[string]interface{}{
		usercontext.AuthKey:     true,
		usercontext.KeyUserID:   userID,
		usercontext.KeyEmail:    u.Email,
		usercontext.KeyUsername: firstNonEmpty(u.Name, u.NickName, u.Email),
	}
	if err := appsession.SetValues(sess, values); err != nil {
		return respondError(c, fiber.StatusInternalServerError, "session_failed", "session save failed")
	}

	log.Infof("[OAuth] User %s logged in via %s", userID, u.Provider)
	return c.Redirect(ac.homeURL, fiber.StatusSeeOther)
}

// HandleLogout destroys the session.
func (ac *AuthController) HandleLogout(c *fiber.Ctx) error {
	fm := fiber.Map{
		"type": "error",
	}

	sess, err := ac.store.Get(c)
	if err != nil {
		fm["message"] = "logged out (no session)"
		return flash.WithError(c, fm).Redirect("/", fiber.StatusSeeOther)
	}
	if err := sess.Destroy(); err != nil {
		fm["message"] = "logout failed, please retry"
		return flash.WithError(c, fm).Redirect("/", fiber.StatusSeeOther)
	}

	fm = fiber.Map{
		"type":    "success",
		"message": "You have been logged out.",
	}
	return flash.WithSuccess(c, fm).Redirect("/", fiber.StatusSeeOther)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
