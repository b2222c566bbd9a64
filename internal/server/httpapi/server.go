package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/terravista/terraplan/internal/logging"
	"github.com/terravista/terraplan/internal/server/uploads"
)

// Server hosts the upload API over HTTP.
type Server struct {
	address string
	engine  *gin.Engine
	logger  logging.Logger
}

// NewServer builds the gin engine with recovery and CORS middleware and
// registers all routes. CORS is open: browsers drive uploads from the
// tracker's dashboards, and the real protection is the API key plus the
// presigned URLs themselves.
func NewServer(address string, u *uploads.Service, apiKey string, logger logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", apiKeyHeader}
	engine.Use(cors.New(corsConfig))

	SetupRoutes(engine, u, apiKey, logger)

	return &Server{
		address: address,
		engine:  engine,
		logger:  logger.With("module", "http_server"),
	}
}

// Engine exposes the underlying gin engine for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.address,
		Handler: s.engine,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
