package usercontext

import "github.com/gofiber/fiber/v2"

// OwnerContext identifies the authenticated caller of a request.
type OwnerContext struct {
	OwnerID       string `json:"owner_id"`
	Authenticated bool   `json:"authenticated"`
}

// Set stores the owner context on the request.
func Set(c *fiber.Ctx, ownerID string) {
	c.Locals(keyContext, OwnerContext{OwnerID: ownerID, Authenticated: ownerID != ""})
	c.Locals(KeyOwnerID, ownerID)
}

// Get retrieves the owner context from fiber context.
// Returns an anonymous context if none is set
func Get(c *fiber.Ctx) OwnerContext {
	if ctx, ok := c.Locals(keyContext).(OwnerContext); ok {
		return ctx
	}
	return OwnerContext{}
}

// OwnerID returns the current owner id, or empty string if anonymous
func OwnerID(c *fiber.Ctx) string {
	return Get(c).OwnerID
}

// IsAuthenticated checks if the request carries an owner
func IsAuthenticated(c *fiber.Ctx) bool {
	return Get(c).Authenticated
}

// IsInternal reports whether the request passed the internal API key check.
func IsInternal(c *fiber.Ctx) bool {
	v, _ := c.Locals(KeyInternal).(bool)
	return v
}
