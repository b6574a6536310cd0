package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abdullah2434/backend/internal/pkg/usercontext"
)

var testSecret = []byte("0123456789abcdef0123")

func signToken(t *testing.T, secret []byte, method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func ownerApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", JWTAuth(testSecret), RequireOwner, func(c *fiber.Ctx) error {
		return c.SendString(usercontext.OwnerID(c))
	})
	return app
}

func TestJWTAuth(t *testing.T) {
	app := ownerApp()
	valid := signToken(t, testSecret, jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "owner-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + valid, fiber.StatusOK},
		{"missing", "", fiber.StatusUnauthorized},
		{"garbage", "Bearer nope", fiber.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, []byte("another-secret-value"), jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "owner-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}), fiber.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "owner-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}), fiber.StatusUnauthorized},
		{"no expiry", "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject: "owner-1",
		}), fiber.StatusUnauthorized},
		{"no subject", "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}), fiber.StatusUnauthorized},
		{"wrong alg", "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS512, jwt.RegisteredClaims{
			Subject:   "owner-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}), fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status == fiber.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, "owner-1", string(body))
			}
		})
	}
}

func TestInternalAPIKeyAndOwnerFromBody(t *testing.T) {
	app := fiber.New()
	app.Post("/internal", InternalAPIKey("internal-key-123456"), OwnerFromBody, func(c *fiber.Ctx) error {
		return c.SendString(usercontext.OwnerID(c))
	})

	send := func(key, body string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/internal", strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, send("internal-key-123456", `{"owner_id":"o1"}`))
	assert.Equal(t, fiber.StatusUnauthorized, send("", `{"owner_id":"o1"}`))
	assert.Equal(t, fiber.StatusUnauthorized, send("wrong", `{"owner_id":"o1"}`))
	assert.Equal(t, fiber.StatusBadRequest, send("internal-key-123456", `{}`))
}
