package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/PratikDhanave/form-relay-service/internal/handlers"
	"github.com/PratikDhanave/form-relay-service/internal/metrics"
	"github.com/PratikDhanave/form-relay-service/internal/pages"
	"github.com/PratikDhanave/form-relay-service/internal/requestid"
)

// Relay is the HTTP side's view of the relay listener.
type Relay interface {
	handlers.Forwarder
	Ping(ctx context.Context) error
}

// Deps are the collaborators the router needs.
type Deps struct {
	Relay       Relay
	Pages       *pages.Pages
	Static      *handlers.Static
	MaxBodySize int64
	Log         zerolog.Logger
}

// NewRouter wires the public surface.
// Fixed: GET/HEAD /, GET/HEAD /message, /health, /ready, /metrics
// Fallback: POST on any path relays the form, GET on any other path serves a static file.
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestid.Middleware())
	r.Use(requestid.AccessLog(d.Log))
	r.Use(metrics.Middleware())

	index := handlers.Page(http.StatusOK, d.Pages.Index)
	message := handlers.Page(http.StatusOK, d.Pages.Message)
	r.GET("/", index)
	r.HEAD("/", index)
	r.GET(handlers.MessagePath, message)
	r.HEAD(handlers.MessagePath, message)

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the relay listener accepts connections.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := d.Relay.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	submit := handlers.Submit(d.Relay, d.MaxBodySize, d.Log)
	r.NoRoute(func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost:
			submit(c)
		case http.MethodGet, http.MethodHead:
			d.Static.Serve(c)
		default:
			c.String(http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
		}
	})

	return r
}

// Server runs the router on addr until ctx is cancelled.
type Server struct {
	srv *http.Server
	log zerolog.Logger
}

// New returns a server for handler on addr.
func New(addr string, handler http.Handler, log zerolog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		log: log,
	}
}

// Run serves until ctx is cancelled, then shuts down with a grace period.
// It returns nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("http listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error().Err(err).Msg("http shutdown failed")
		return err
	}
	s.log.Info().Msg("http stopped")
	return nil
}
