package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Abdullah2434/backend/internal/pkg/usercontext"
)

// OwnerFromBody sets the owner context from the owner_id field of an
// internal request body. It must run after InternalAPIKey.
func OwnerFromBody(c *fiber.Ctx) error {
	if !usercontext.IsInternal(c) {
		return unauthorized(c, "internal caller required")
	}
	var body struct {
		OwnerID string `json:"owner_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.OwnerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "owner_id is required"})
	}
	usercontext.Set(c, body.OwnerID)
	return c.Next()
}
