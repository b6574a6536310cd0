package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/Abdullah2434/backend/internal/pkg/usercontext"
)

// InternalAPIKey authenticates service to service calls carrying the shared
// key in X-API-Key.
func InternalAPIKey(key string) fiber.Handler {
	expected := []byte(key)
	return func(c *fiber.Ctx) error {
		apiKey := strings.TrimSpace(c.Get("X-API-Key"))
		if apiKey == "" {
			return unauthorized(c, "Missing API key")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), expected) != 1 {
			log.Warnf("[Auth] Invalid internal API key from %s", c.IP())
			return unauthorized(c, "Invalid API key")
		}
		c.Locals(usercontext.KeyInternal, true)
		return c.Next()
	}
}
