package oauth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/discord"
	"github.com/markbates/goth/providers/facebook"
	"github.com/markbates/goth/providers/google"
	"github.com/redis/go-redis/v9"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
	appsession "github.com/ManuelReschke/CourseFox/internal/pkg/session"
)

// Providers builds the goth providers that have credentials configured.
// Callbacks are rooted at baseURL.
func Providers(baseURL string) []goth.Provider {
	base := strings.TrimRight(baseURL, "/")
	var providers []goth.Provider

	if key, secret := env.GetEnv("GOOGLE_KEY", ""), env.GetEnv("GOOGLE_SECRET", ""); key != "" && secret != "" {
		providers = append(providers, google.New(key, secret, base+"/auth/google/callback", "email", "profile"))
	}
	if key, secret := env.GetEnv("FACEBOOK_KEY", ""), env.GetEnv("FACEBOOK_SECRET", ""); key != "" && secret != "" {
		providers = append(providers, facebook.New(key, secret, base+"/auth/facebook/callback", "email", "public_profile"))
	}
	if key, secret := env.GetEnv("DISCORD_KEY", ""), env.GetEnv("DISCORD_SECRET", ""); key != "" && secret != "" {
		providers = append(providers, discord.New(key, secret, base+"/auth/discord/callback", discord.ScopeIdentify, discord.ScopeEmail))
	}
	return providers
}

// Setup registers the configured identity providers and keeps the OAuth
// state in Redis next to the app sessions. It is safe to call multiple
// times; providers will just be re-registered.
func Setup(client *redis.Client, baseURL string) {
	providers := Providers(baseURL)
	if len(providers) == 0 {
		log.Warn("[OAuth] No identity provider configured, login is disabled")
	}
	goth.UseProviders(providers...)

	gothfiber.SessionStore = session.New(session.Config{
		Storage:        appsession.NewOAuthStorage(client),
		KeyLookup:      "cookie:" + gothic.SessionName,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   !env.IsDev(),
		Expiration:     time.Hour,
	})
}
