package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/Abdullah2434/backend/internal/pkg/billing"
	"github.com/Abdullah2434/backend/internal/pkg/config"
)

// WebhookController receives provider webhooks.
type WebhookController struct {
	engine    *billing.Engine
	secrets   []string
	tolerance time.Duration
	timeout   time.Duration
	now       func() time.Time
}

func NewWebhookController(engine *billing.Engine, cfg config.Billing) *WebhookController {
	return &WebhookController{
		engine:    engine,
		secrets:   cfg.WebhookSecrets,
		tolerance: cfg.WebhookTolerance,
		timeout:   cfg.WebhookTimeout,
		now:       time.Now,
	}
}

// HandleBillingWebhook verifies, classifies and applies one delivery. Only
// a 503 asks the provider to redeliver.
func (w *WebhookController) HandleBillingWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := firstHeaderValue(c, "X-Signature", "Stripe-Signature")

	if err := w.verify(rawBody, signature); err != nil {
		log.Warnf("[Webhook] Rejected delivery from %s: %v", c.IP(), err)
		return errorResponse(c, err)
	}

	ev, err := billing.Classify(rawBody)
	if err != nil {
		log.Warnf("[Webhook] Malformed delivery: %v", err)
		return errorResponse(c, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), w.timeout)
	defer cancel()

	out, err := w.engine.Apply(ctx, ev)
	switch {
	case err == nil:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"ok":       true,
			"event_id": ev.ProviderEventID,
			"kind":     ev.Kind,
			"result":   out.Result,
		})
	case errors.Is(err, billing.ErrPermanentConflict):
		log.Errorf("[Webhook] Event %s (%s) needs attention: %v", ev.ProviderEventID, ev.ProviderType, err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"ok":       true,
			"event_id": ev.ProviderEventID,
			"conflict": true,
		})
	default:
		status, _ := billingErrorStatus(err)
		if status == fiber.StatusInternalServerError {
			// Unclassified failures are retried like transient ones.
			status = fiber.StatusServiceUnavailable
		}
		log.Errorf("[Webhook] Event %s (%s) not applied, waiting for redelivery: %v", ev.ProviderEventID, ev.ProviderType, err)
		return c.Status(status).JSON(fiber.Map{"error": "retry_later", "event_id": ev.ProviderEventID})
	}
}

// verify accepts the body if any configured secret signed it.
func (w *WebhookController) verify(body []byte, signature string) error {
	err := billing.ErrSignatureInvalid
	now := w.now()
	for _, secret := range w.secrets {
		if err = billing.VerifySignature(body, signature, secret, w.tolerance, now); err == nil {
			return nil
		}
	}
	return err
}
