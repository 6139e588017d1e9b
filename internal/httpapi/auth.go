package httpapi

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const ownerLocal = "owner"

var (
	errMissingToken = errors.New("missing bearer token")
	errBadToken     = errors.New("invalid token")
)

// ownerFromToken verifies an HS256 token and returns its subject.
func ownerFromToken(raw, secret string) (string, error) {
	if raw == "" {
		return "", errMissingToken
	}
	if secret == "" {
		return "", errBadToken
	}
	tok, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return "", errBadToken
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", errBadToken
	}
	return strings.TrimSpace(sub), nil
}

func bearer(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	const p = "Bearer "
	if len(h) < len(p) || !strings.EqualFold(h[:len(p)], p) {
		return ""
	}
	return strings.TrimSpace(h[len(p):])
}

func (s *Server) ownerAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner, err := ownerFromToken(bearer(c), secret)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		c.Locals(ownerLocal, owner)
		return c.Next()
	}
}

func opsAuth(token string) fiber.Handler {
	want := []byte(token)
	return func(c *fiber.Ctx) error {
		got := []byte(bearer(c))
		if len(got) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}
		return c.Next()
	}
}

func ownerOf(c *fiber.Ctx) string {
	owner, _ := c.Locals(ownerLocal).(string)
	return owner
}
