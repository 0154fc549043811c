package fixture

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/monitoring"
)

//go:embed test.html
var page []byte

// Page returns the fixture page served at every path.
func Page() []byte {
	return append([]byte(nil), page...)
}

// ServerConfig configures the fixture content server.
type ServerConfig struct {
	Host    string
	Port    int // 0 picks a free port
	Metrics *monitoring.Metrics
}

// Server serves the fixture page to every window and pane of a run.
type Server struct {
	cfg    ServerConfig
	logger *logging.Logger
	router *gin.Engine

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	served   chan error
}

// NewServer creates a stopped fixture server.
func NewServer(cfg ServerConfig, logger *logging.Logger) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}

	s := &Server{
		cfg:    cfg,
		logger: logging.OrNop(logger).Component("fixture"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(s.cfg.Metrics, "fixture"))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Accept", "Cache-Control"},
		MaxAge:          12 * time.Hour,
	}))
	router.NoRoute(s.serve)
	return router
}

func (s *Server) serve(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Status(http.StatusMethodNotAllowed)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.http != nil {
		return errors.New("fixture server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.listener = ln
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.served = make(chan error, 1)

	go func(srv *http.Server, done chan<- error) {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}(s.http, s.served)

	s.logger.Info("fixture server listening", zap.String("url", s.urlLocked()))
	return nil
}

// URL returns the base URL of a started server, or "" before Start.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.urlLocked()
}

func (s *Server) urlLocked() string {
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String()
}

// Stop shuts the server down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, served := s.http, s.served
	s.http, s.listener, s.served = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown fixture server: %w", err)
	}
	if err := <-served; err != nil {
		return fmt.Errorf("fixture server: %w", err)
	}
	s.logger.Info("fixture server stopped")
	return nil
}
