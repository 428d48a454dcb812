package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const (
	kakaoPlatform = "kakao"
	webPlatform   = "web"

	defaultKakaoUser = "unknown"
	defaultWebUser   = "web_user"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   Version,
		"uptime":    s.metrics.Uptime().Round(time.Second).String(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleKakaoChat(c *fiber.Ctx) error {
	var req KakaoRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	userID := req.UserRequest.User.ID
	if userID == "" {
		userID = defaultKakaoUser
	}

	reply := s.dispatcher.Dispatch(c.UserContext(), userID, kakaoPlatform, req.UserRequest.Utterance)

	s.logger.Info("Replied", zap.String("platform", kakaoPlatform), zap.String("user_id", userID))
	return c.JSON(kakaoText(reply))
}

// webUserID scopes browser-supplied ids so they cannot address memory
// that belongs to users of other platforms.
func webUserID(raw string) string {
	if raw == "" {
		raw = defaultWebUser
	}
	return webPlatform + ":" + raw
}

// handleWebSocket treats every text frame as one utterance and answers
// with one text frame. A client disconnect cancels the turn in flight.
func (s *Server) handleWebSocket(c *websocket.Conn) {
	userID := webUserID(c.Query("user_id"))
	s.logger.Info("WebSocket connected", zap.String("user_id", userID))

	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan string)
	readerDone := make(chan struct{})

	// The conn is recycled once this handler returns, so the reader must
	// be gone by then.
	defer func() {
		cancel()
		c.Close()
		<-readerDone
	}()

	go func() {
		defer close(readerDone)
		defer close(frames)
		defer cancel()

		for {
			mt, msg, err := c.ReadMessage()
			if err != nil {
				s.logger.Debug("WebSocket closed", zap.String("user_id", userID), zap.Error(err))
				return
			}
			if mt != websocket.TextMessage {
				continue
			}
			select {
			case frames <- string(msg):
			case <-ctx.Done():
				return
			}
		}
	}()

	for text := range frames {
		reply := s.dispatcher.Dispatch(ctx, userID, webPlatform, text)
		if ctx.Err() != nil {
			return
		}
		if err := c.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			s.logger.Warn("WebSocket write error", zap.String("user_id", userID), zap.Error(err))
			return
		}
	}
}
