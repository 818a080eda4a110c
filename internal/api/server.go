// Package api exposes the scanner over HTTP: REST queries and runtime
// configuration, plus a WebSocket push stream for live trigger alerts.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"setup-scanner/internal/auth"
	"setup-scanner/internal/database"
	"setup-scanner/internal/notify"
	"setup-scanner/internal/scanner"
)

// Config holds server settings.
type Config struct {
	Host           string
	Port           int
	ProductionMode bool
}

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	scanner    *scanner.Scanner
	bus        *notify.Bus
	verifier   *auth.Verifier // nil disables auth
	repo       *database.Repository
	log        zerolog.Logger
}

// NewServer wires routes. verifier and repo may be nil.
func NewServer(cfg Config, sc *scanner.Scanner, bus *notify.Bus, verifier *auth.Verifier, repo *database.Repository, log zerolog.Logger) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:   router,
		scanner:  sc,
		bus:      bus,
		verifier: verifier,
		repo:     repo,
		log:      log.With().Str("component", "api").Logger(),
	}

	router.Use(s.requestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws/alerts", s.handleAlertStream)

	api := s.router.Group("/api")
	{
		api.GET("/setups", s.handleGetSetups)
		api.GET("/alerts/active", s.handleActiveAlerts)
		api.GET("/alerts/history", s.handleAlertHistory)
		api.GET("/scanner/status", s.handleStatus)
	}

	// Mutating endpoints require a valid bearer token when auth is enabled.
	protected := s.router.Group("/api")
	protected.Use(auth.Middleware(s.verifier))
	{
		protected.POST("/scanner/start", s.handleStart)
		protected.POST("/scanner/stop", s.handleStop)
		protected.PUT("/scanner/watchlist", s.handleSetWatchlist)
		protected.PUT("/scanner/interval", s.handleSetInterval)
		protected.POST("/scanner/setup-types/:type/enable", s.handleEnableType)
		protected.POST("/scanner/setup-types/:type/disable", s.handleDisableType)
		protected.POST("/alerts/:id/outcome", s.handleAlertOutcome)
	}
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("api server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"running":     s.scanner.IsRunning(),
		"subscribers": s.bus.SubscriberCount(),
		"time":        time.Now().UTC(),
	})
}
