package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/config"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/dto"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AdminRequired guards the administrative routes. A bearer credential is
// accepted if it is:
// 1. the static ADMIN_TOKEN (constant-time compare)
// 2. a token matching the bcrypt ADMIN_TOKEN_HASH
// 3. an HS256 JWT signed with JWT_SECRET carrying role=admin
func AdminRequired(cfg *config.Config) fiber.Handler {
	var jwtCheck fiber.Handler
	if cfg.JWTSecret != "" {
		jwtCheck = jwtware.New(jwtware.Config{
			SigningKey:     jwtware.SigningKey{JWTAlg: jwtware.HS256, Key: []byte(cfg.JWTSecret)},
			ErrorHandler:   unauthorized,
			SuccessHandler: requireAdminRole,
		})
	}

	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return unauthorized(c, nil)
		}

		if matchesStaticToken(cfg, token) {
			return c.Next()
		}

		if jwtCheck != nil {
			return jwtCheck(c)
		}
		return unauthorized(c, nil)
	}
}

func matchesStaticToken(cfg *config.Config, token string) bool {
	if cfg.AdminToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(cfg.AdminToken)) == 1 {
		return true
	}
	if cfg.AdminTokenHash != "" &&
		bcrypt.CompareHashAndPassword([]byte(cfg.AdminTokenHash), []byte(token)) == nil {
		return true
	}
	return false
}

func requireAdminRole(c *fiber.Ctx) error {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return unauthorized(c, nil)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return unauthorized(c, nil)
	}
	if role, _ := claims["role"].(string); role != "admin" {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "Admin access required"})
	}
	return c.Next()
}

func bearerToken(c *fiber.Ctx) string {
	auth := c.Get(fiber.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

func unauthorized(c *fiber.Ctx, _ error) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "Unauthorized"})
}
