// Package api implements the REST status API of the matchmaking server.
// It is read-only: operators inspect sessions, the queue, and history
// over HTTP while clients keep using the binary WebSocket protocol.
package api

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/slonopotamus/Atto/internal/config"
	"github.com/slonopotamus/Atto/internal/history"
	"github.com/slonopotamus/Atto/internal/matchmaker"
	"github.com/slonopotamus/Atto/internal/network"
	"github.com/slonopotamus/Atto/internal/util"
)

// Server is the REST API server.
type Server struct {
	cfg        *config.Config
	matchmaker *matchmaker.Matchmaker
	gameServer *network.Server
	store      *history.Store

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates the API server. The history store may be nil when
// history is disabled.
func NewServer(cfg *config.Config, mm *matchmaker.Matchmaker, gameServer *network.Server, store *history.Store) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:        cfg,
		matchmaker: mm,
		gameServer: gameServer,
		store:      store,
	}
}

// Start serves the API until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	addr := fmt.Sprintf(":%d", s.cfg.API.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.API.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(s.cfg.API.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	router.GET("/healthz", s.handleHealthz)

	api := router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/sessions", s.handleSessions)
		api.GET("/queue", s.handleQueue)
		api.GET("/matches", s.handleMatches)
	}

	return router
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"uptime_secs": s.gameServer.Uptime().Seconds(),
		"connections": s.gameServer.ConnectionCount(),
		"sessions":    s.matchmaker.SessionCount(),
		"queue_depth": s.matchmaker.QueueDepth(),
		"system":      util.GetSystemInfo(),
	}

	if cpuUsage, err := util.GetCPUUsage(); err == nil {
		status["cpu_percent"] = cpuUsage
	}
	if memUsage, err := util.GetMemoryUsage(); err == nil {
		status["memory"] = memUsage
	}
	if s.store != nil {
		if count, err := s.store.MatchCount(); err == nil {
			status["total_matches"] = count
		}
	}
	if s.cfg.History.Enabled {
		// Operators watch this to catch the history volume filling up.
		if diskUsage, err := util.GetDiskUsage(filepath.Dir(s.cfg.History.Path)); err == nil {
			status["history_disk"] = diskUsage
		}
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) handleSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.matchmaker.Sessions()})
}

func (s *Server) handleQueue(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"queue": s.matchmaker.QueueSummary()})
}

func (s *Server) handleMatches(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "match history is disabled"})
		return
	}

	matches, err := s.store.RecentMatches(50)
	if err != nil {
		log.Error().Err(err).Msg("failed to read match history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read match history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
