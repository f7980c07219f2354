// ABOUTME: JWT authentication middleware for gateway routes
// ABOUTME: Accepts bearer headers and a token query parameter for ws clients

package gateway

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// localExternalID is the fiber.Ctx Locals key carrying the authenticated
// external identity.
const localExternalID = "external_id"

// requireAuth extracts and verifies a JWT, storing the external identity in
// request locals. Browser WebSocket clients cannot set headers, so a token
// query parameter is accepted as well.
func (g *Gateway) requireAuth(c *fiber.Ctx) error {
	token := bearerToken(c.Get("Authorization"))
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing token"})
	}

	externalID, err := g.verifier.Verify(token)
	if err != nil {
		g.logger.Debug("rejected token", "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}

	c.Locals(localExternalID, externalID)
	return c.Next()
}

// bearerToken extracts the token from an Authorization header, or returns
// empty.
func bearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
