package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

// StripeSignatureHeader carries the webhook signature.
const StripeSignatureHeader = "Stripe-Signature"

// BillingService is the part of billing.Service the handlers use.
type BillingService interface {
	GetStatus(ctx context.Context, userID string) (*billing.SubscriptionSnapshot, error)
	ForceResync(ctx context.Context, userID string) (*billing.SubscriptionSnapshot, error)
	CreateCheckout(ctx context.Context, userID, email, priceID string) (string, error)
	SetCancelAtPeriodEnd(ctx context.Context, userID, subscriptionID string, cancel bool) (*billing.SubscriptionSnapshot, error)
}

// WebhookGateway verifies and dispatches provider webhooks.
type WebhookGateway interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (billing.WebhookResult, error)
}

// BillingController handles webhook, status and checkout requests
type BillingController struct {
	service   BillingService
	gateway   WebhookGateway
	returnURL string
	validate  *validator.Validate
}

// NewBillingController creates a billing controller. returnURL is where the
// user lands after checkout.
func NewBillingController(service BillingService, gateway WebhookGateway, returnURL string) *BillingController {
	if returnURL == "" {
		returnURL = "/"
	}
	return &BillingController{
		service:   service,
		gateway:   gateway,
		returnURL: returnURL,
		validate:  validator.New(),
	}
}

// CheckoutRequest is the body of POST /api/v1/billing/checkout. Email
// defaults to the address of the session.
type CheckoutRequest struct {
	PriceID string `json:"price_id" validate:"omitempty,max=255"`
	Email   string `json:"email" validate:"omitempty,email,max=254"`
}

type statusResponse struct {
	HasBilling    bool                         `json:"has_billing"`
	Entitled      bool                         `json:"entitled"`
	Status        string                       `json:"status,omitempty"`
	Subscriptions []billing.SubscriptionRecord `json:"subscriptions,omitempty"`
}

func newStatusResponse(snapshot *billing.SubscriptionSnapshot) statusResponse {
	if snapshot.IsNone() {
		return statusResponse{HasBilling: true, Status: billing.SnapshotStatusNone}
	}
	return statusResponse{
		HasBilling:    true,
		Entitled:      snapshot.Entitled(),
		Subscriptions: snapshot.Subscriptions,
	}
}

// HandleWebhook receives provider webhooks. Only deliveries that fail
// verification get a non-2xx; everything else is acknowledged.
func (bc *BillingController) HandleWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	signature := strings.TrimSpace(c.Get(StripeSignatureHeader))

	res, err := bc.gateway.HandleWebhook(c.UserContext(), payload, signature)
	if !res.Acknowledge() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}
	if err != nil {
		log.Warnf("[BillingWebhook] Acknowledged event %s with error: %v", res.EventID, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "outcome": res.Outcome})
}

// HandleStatus returns the cached subscription state of the session user.
func (bc *BillingController) HandleStatus(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	snapshot, err := bc.service.GetStatus(c.UserContext(), userID)
	if errors.Is(err, billing.ErrNotFound) {
		return c.JSON(statusResponse{HasBilling: false, Status: billing.SnapshotStatusNone})
	}
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(newStatusResponse(snapshot))
}

// HandleResync syncs the session user's subscriptions from the provider now.
func (bc *BillingController) HandleResync(c *fiber.Ctx) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	snapshot, err := bc.service.ForceResync(c.UserContext(), userID)
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(newStatusResponse(snapshot))
}

// HandleCheckout starts a hosted checkout for the session user.
func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req CheckoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, fiber.StatusBadRequest, "invalid_request", "request body is not valid")
		}
	}
	req.PriceID = strings.TrimSpace(req.PriceID)
	req.Email = strings.TrimSpace(req.Email)
	if err := bc.validate.Struct(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid_request", "price_id or email is not valid")
	}
	if req.Email == "" {
		req.Email = userCtx.Email
	}

	url, err := bc.service.CreateCheckout(c.UserContext(), userID, req.Email, req.PriceID)
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleCancelSubscription schedules the subscription to end with its period.
func (bc *BillingController) HandleCancelSubscription(c *fiber.Ctx) error {
	return bc.setCancelAtPeriodEnd(c, true)
}

// HandleResumeSubscription undoes a scheduled cancellation.
func (bc *BillingController) HandleResumeSubscription(c *fiber.Ctx) error {
	return bc.setCancelAtPeriodEnd(c, false)
}

func (bc *BillingController) setCancelAtPeriodEnd(c *fiber.Ctx, cancel bool) error {
	userID, ok := requireUser(c)
	if !ok {
		return nil
	}

	snapshot, err := bc.service.SetCancelAtPeriodEnd(c.UserContext(), userID, c.Params("id"), cancel)
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(newStatusResponse(snapshot))
}

// HandleCheckoutSuccess is the provider's post-checkout redirect target. It
// resyncs so the next page already shows the new subscription.
func (bc *BillingController) HandleCheckoutSuccess(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == "" {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	if _, err := bc.service.ForceResync(c.UserContext(), userID); err != nil {
		log.Warnf("[BillingSync] Post-checkout resync for user %s failed: %v", userID, err)
		fm := fiber.Map{
			"type":    "error",
			"message": "Your subscription status is temporarily unavailable. Please retry in a moment.",
		}
		return flash.WithError(c, fm).Redirect(bc.returnURL, fiber.StatusSeeOther)
	}

	fm := fiber.Map{
		"type":    "success",
		"message": "Thanks! Your subscription is active.",
	}
	return flash.WithSuccess(c, fm).Redirect(bc.returnURL, fiber.StatusSeeOther)
}

func requireUser(c *fiber.Ctx) (string, bool) {
	userID := usercontext.GetUserID(c)
	if userID == "" {
		_ = respondError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
		return "", false
	}
	return userID, true
}

// respondBillingError maps billing errors to JSON. Provider details are
// logged, never returned.
func respondBillingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, billing.ErrInvalidArgument):
		return respondError(c, fiber.StatusBadRequest, "invalid_argument", strings.TrimPrefix(err.Error(), billing.ErrInvalidArgument.Error()+": "))
	case errors.Is(err, billing.ErrNotFound):
		return respondError(c, fiber.StatusNotFound, "not_found", "no billing customer for this account")
	case errors.Is(err, billing.ErrProvider):
		log.Errorf("[BillingSync] %s %s: %v", c.Method(), c.Path(), err)
		return respondError(c, fiber.StatusServiceUnavailable, "provider_unavailable", "billing provider temporarily unavailable, please retry")
	default:
		log.Errorf("[BillingSync] %s %s: %v", c.Method(), c.Path(), err)
		return respondError(c, fiber.StatusInternalServerError, "internal_error", "something went wrong, please retry")
	}
}

func respondError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}
