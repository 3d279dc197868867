package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"

	"github.com/alkime/callcoach/internal/config"
	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/history"
	"github.com/alkime/callcoach/internal/pipeline"
	"github.com/alkime/callcoach/internal/workflow"
)

// PublicDir holds the static front-end files.
const PublicDir = "./public"

// maxUploadBody leaves room for multipart framing and form fields around
// the largest accepted file.
const maxUploadBody = pipeline.MaxUploadBytes + 1<<20

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// AnalysisReader reads analyses and the owner of their transcript.
type AnalysisReader interface {
	GetTranscript(ctx context.Context, id string) (*domain.Transcript, string, error)
	ListAnalyses(ctx context.Context, transcriptID string) ([]domain.AnalysisResult, error)
}

// Deps are the collaborators the handlers use.
type Deps struct {
	Auth          Authenticator
	NewController func(ownerID string) *workflow.Controller
	History       *history.Browser
	Analyses      AnalysisReader
}

// Server represents the HTTP server
type Server struct {
	config   *config.Config
	logger   *slog.Logger
	router   *gin.Engine
	deps     Deps
	sessions *sessions
}

// New creates a new Server instance
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	// Set Gin mode based on environment
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	// Configure proxy trust for production (Fly.io)
	if cfg.Env == config.EnvProduction {
		router.TrustedPlatform = gin.PlatformFlyIO
		logger.Debug("Configured trusted platform", "platform", "fly.io")
	}

	server := &Server{
		config:   cfg,
		logger:   logger,
		router:   router,
		deps:     deps,
		sessions: newSessions(deps.NewController, cfg.SessionIdleTimeout),
	}

	setupSecurityMiddleware(router, cfg, logger)
	server.setupRoutes()

	return server
}

// Router exposes the engine for tests and for http.Server.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Close stops every user's workflow controller.
func (s *Server) Close() {
	s.sessions.closeAll()
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api/v1", requireUser(s.deps.Auth, s.logger))
	{
		api.POST("/assets", limitBody(maxUploadBody), s.handleUpload)

		api.GET("/workflow", s.handleState)
		api.GET("/workflow/events", s.handleEvents)
		api.POST("/workflow/transcribe", s.handleTranscribe)
		api.POST("/workflow/analyze", s.handleAnalyze)
		api.POST("/workflow/select", s.handleSelect)
		api.DELETE("/workflow/error", s.handleClearError)

		api.GET("/history", s.handleHistory)
		api.GET("/transcripts/:id/analyses", s.handleAnalyses)
	}

	// Static files only answer paths no route matched.
	s.router.NoRoute(static.Serve("/", static.LocalFile(PublicDir, true)))
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "callcoach",
	})
}
