package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/Abdullah2434/backend/internal/pkg/billing"
)

const requestTimeout = 15 * time.Second

var validate = validator.New()

// billingErrorStatus maps billing errors to an HTTP status and error code.
func billingErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, billing.ErrSignatureInvalid):
		return fiber.StatusBadRequest, "invalid_signature"
	case errors.Is(err, billing.ErrMalformedPayload):
		return fiber.StatusBadRequest, "invalid_payload"
	case errors.Is(err, billing.ErrUnknownPlan):
		return fiber.StatusBadRequest, "unknown_plan"
	case errors.Is(err, billing.ErrAlreadySubscribed):
		return fiber.StatusConflict, "already_subscribed"
	case errors.Is(err, billing.ErrPermanentConflict):
		return fiber.StatusConflict, "conflict"
	case errors.Is(err, billing.ErrNoActiveSubscription):
		return fiber.StatusNotFound, "no_active_subscription"
	case errors.Is(err, billing.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case billing.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable, "provider_unavailable"
	default:
		return fiber.StatusInternalServerError, "internal_server_error"
	}
}

func errorResponse(c *fiber.Ctx, err error) error {
	status, code := billingErrorStatus(err)
	return c.Status(status).JSON(fiber.Map{"error": code, "message": err.Error()})
}

// parseBody decodes and validates a JSON request body.
func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return validate.Struct(dst)
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
