// Package api serves the HTTP gateway: the Kakao skill webhook, the web
// chat socket, health and metrics.
package api

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gmsas95/kipbot/internal/channels"
	"github.com/gmsas95/kipbot/internal/metrics"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Version is reported by /health
var Version = "dev"

// Options configures the gateway
type Options struct {
	Address string
	Port    int

	// Kakao mounts POST /kakao/chat; KakaoAPIKey, when set, must match
	// the X-Api-Key header of every skill request.
	Kakao       bool
	KakaoAPIKey string

	// Web mounts GET /ws
	Web bool
}

// Server handles HTTP API and WebSocket
type Server struct {
	app        *fiber.App
	opts       Options
	dispatcher *channels.Dispatcher
	metrics    *metrics.Metrics
	logger     *zap.Logger
	addr       net.Addr
}

// New creates a new gateway server
func New(opts Options, d *channels.Dispatcher, m *metrics.Metrics, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "kipbot",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          90 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	s := &Server{
		app:        app,
		opts:       opts,
		dispatcher: d,
		metrics:    m,
		logger:     logger,
	}

	s.setupRoutes()
	return s
}

// Start binds the listener and serves in the background
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.opts.Address, s.opts.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.addr = ln.Addr()

	go func() {
		if err := s.app.Listener(ln); err != nil {
			s.logger.Error("Gateway server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("Gateway server started",
		zap.String("address", s.addr.String()),
		zap.Bool("kakao", s.opts.Kakao),
		zap.Bool("web", s.opts.Web),
	)
	return nil
}

// Addr returns the bound address once Start has succeeded
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
