package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Abdullah2434/backend/internal/pkg/usercontext"
)

// JWTAuth authenticates bearer tokens signed with HS256. The subject claim
// becomes the owner id of the request.
func JWTAuth(secret []byte) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(c *fiber.Ctx) error {
		raw := bearerToken(c)
		if raw == "" {
			return unauthorized(c, "Missing bearer token")
		}

		claims := &jwt.RegisteredClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return unauthorized(c, "Token expired")
			}
			log.Warnf("[Auth] Rejected token from %s: %v", c.IP(), err)
			return unauthorized(c, "Invalid token")
		}
		if strings.TrimSpace(claims.Subject) == "" {
			return unauthorized(c, "Token has no subject")
		}

		usercontext.Set(c, claims.Subject)
		return c.Next()
	}
}

// RequireOwner ensures an authenticated owner; returns JSON 401 otherwise.
func RequireOwner(c *fiber.Ctx) error {
	if !usercontext.IsAuthenticated(c) {
		return unauthorized(c, "login required")
	}
	return c.Next()
}

func bearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": msg})
}
