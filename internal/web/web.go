package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"aerofarm/internal/db"
	"aerofarm/internal/web/api"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the read-only history/alert surface plus health and metrics.
type Server struct {
	srv *http.Server
}

// NewServer builds the HTTP router over the store.
func NewServer(database *db.DB) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	api.RegisterHistoryRoutes(router, database)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{srv: &http.Server{Handler: router}}
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv.Addr = addr
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
