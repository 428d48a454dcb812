package api

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// kakaoAuth checks the shared secret configured on the Open Builder skill
func (s *Server) kakaoAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s.opts.KakaoAPIKey == "" {
			return c.Next()
		}

		key := c.Get("X-Api-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.KakaoAPIKey)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid api key"})
		}
		return c.Next()
	}
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
