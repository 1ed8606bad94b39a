package billing

import (
	"strings"
	"time"

	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
)

const (
	defaultSubscriptionLimit = 3
	defaultProviderTimeout   = 10 * time.Second
)

// Config collects the billing settings read from the environment.
type Config struct {
	StripeSecretKey   string
	WebhookSecret     string
	APIBaseURL        string
	ProviderTimeout   time.Duration
	SubscriptionLimit int
	DefaultPriceID    string
	PublicBaseURL     string
	ReturnURL         string
	AuditEnabled      bool
	ReconcileInterval time.Duration
}

func ConfigFromEnv() Config {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if base == "" {
		base = "http://localhost:" + env.GetEnv("APP_PORT", "4000")
	}

	cfg := Config{
		StripeSecretKey:   strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret:     strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		APIBaseURL:        strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", "")),
		ProviderTimeout:   env.GetEnvDuration("STRIPE_TIMEOUT", defaultProviderTimeout),
		SubscriptionLimit: env.GetEnvInt("BILLING_SUBSCRIPTION_LIMIT", defaultSubscriptionLimit),
		DefaultPriceID:    strings.TrimSpace(env.GetEnv("STRIPE_PRICE_ID", "")),
		PublicBaseURL:     base,
		ReturnURL:         env.GetEnv("BILLING_RETURN_URL", "/courses"),
		AuditEnabled:      env.GetEnvBool("BILLING_AUDIT_ENABLED", true),
		ReconcileInterval: env.GetEnvDuration("BILLING_RECONCILE_INTERVAL", 0),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = defaultProviderTimeout
	}
	if c.SubscriptionLimit <= 0 {
		c.SubscriptionLimit = defaultSubscriptionLimit
	}
	if c.ReturnURL == "" {
		c.ReturnURL = "/"
	}
	return c
}

// SuccessURL is where the provider sends the user after checkout.
func (c Config) SuccessURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/billing/success"
}

// CancelURL is where the provider sends the user when checkout is aborted.
func (c Config) CancelURL() string {
	if strings.HasPrefix(c.ReturnURL, "http://") || strings.HasPrefix(c.ReturnURL, "https://") {
		return c.ReturnURL
	}
	return strings.TrimRight(c.PublicBaseURL, "/") + c.ReturnURL
}
