// Package http serves and consumes the counters HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/datapowersync/counters/internal"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/felixge/httpsnoop"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// APIPrefix is the path prefix of all API routes.
	APIPrefix = "/api"

	// shutdownTimeout is the time given for in-flight requests to finish
	// before connections are closed.
	shutdownTimeout = 1 * time.Second
)

type (
	// Handlers is a set of routes to be added to the server.
	Handlers interface {
		AddHandlers(*mux.Router)
	}

	// ServerConfig is the http server config
	ServerConfig struct {
		SSL                  bool
		CertFile, KeyFile    string
		EnableRequestLogging bool

		Handlers []Handlers
	}

	// Server is the http server for the counters daemon
	Server struct {
		logr.Logger
		ServerConfig

		server *http.Server
	}
)

// NewServer constructs the http server
func NewServer(logger logr.Logger, cfg ServerConfig) (*Server, error) {
	if cfg.SSL && (cfg.CertFile == "" || cfg.KeyFile == "") {
		return nil, errors.New("must provide both --cert-file and --key-file")
	}
	return &Server{
		Logger:       logger,
		ServerConfig: cfg,
		server: &http.Server{
			Handler:           NewRouter(logger, cfg),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// NewRouter constructs the router serving all routes: the health and metrics
// endpoints, and the routes of each of the handlers.
func NewRouter(logger logr.Logger, cfg ServerConfig) *mux.Router {
	r := mux.NewRouter()

	// Catch panics and return 500s
	r.Use(gorillaHandlers.RecoveryHandler(gorillaHandlers.PrintRecoveryStack(true)))
	if cfg.EnableRequestLogging {
		r.Use(logRequests(logger))
	}

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", healthz).Methods("GET")

	for _, h := range cfg.Handlers {
		h.AddHandlers(r)
	}
	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, struct {
		Version string
		Commit  string
		Built   string
	}{
		Version: internal.Version,
		Commit:  internal.Commit,
		Built:   internal.Built,
	})
}

// logRequests logs each request once it completes. Streaming requests are
// logged when the stream ends.
func logRequests(logger logr.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			logger.Info("request",
				"duration", fmt.Sprintf("%dms", m.Duration.Milliseconds()),
				"status", m.Code,
				"method", r.Method,
				"path", r.URL.RequestURI(),
				"remote", r.RemoteAddr,
			)
		})
	}
}

// Start serves http traffic on the given listener until ctx is canceled or
// the server fails. Requests inherit ctx, so open event streams end as soon
// as shutdown begins.
func (s *Server) Start(ctx context.Context, ln net.Listener) error {
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	errch := make(chan error, 1)
	go func() {
		if s.SSL {
			errch <- s.server.ServeTLS(ln, s.CertFile, s.KeyFile)
		} else {
			errch <- s.server.Serve(ln)
		}
	}()
	s.Info("started server", "address", ln.Addr().String(), "ssl", s.SSL)

	select {
	case err := <-errch:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Info("gracefully shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return s.server.Close()
	}
	return nil
}

// APIRouter wraps the given router with a router suitable for API routes.
func APIRouter(r *mux.Router) *mux.Router {
	return r.PathPrefix(APIPrefix).Subrouter()
}
