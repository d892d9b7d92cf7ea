// Package server exposes an engine over the SPARQL 1.1 protocol.
package server

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/exocortex/exoql/pkg/errors"
	"github.com/exocortex/exoql/pkg/sparql/engine"
	"github.com/exocortex/exoql/pkg/store"
)

// DefaultAddr is where the endpoint listens when nothing is configured.
const DefaultAddr = "localhost:27124"

// Server represents the HTTP SPARQL server. Queries share a read lock on the
// store; data uploads take the write lock.
type Server struct {
	engine *engine.Engine
	store  *store.TripleStore
	mu     sync.RWMutex

	addr         string
	corsOrigins  []string
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       *logrus.Logger
	router       chi.Router
}

// Option configures a Server
type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithCORSOrigins sets the origins allowed to call the API from a browser.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		s.readTimeout, s.writeTimeout = read, write
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a SPARQL HTTP server answering with e.
func NewServer(e *engine.Engine, opts ...Option) *Server {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &Server{
		engine:       e,
		store:        e.Store(),
		addr:         DefaultAddr,
		corsOrigins:  []string{"*"},
		readTimeout:  15 * time.Second,
		writeTimeout: 60 * time.Second,
		logger:       discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{queryIDHeader},
		MaxAge:         300,
	}))

	r.Get("/", s.handleRoot)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/sparql", s.handleSPARQL)
		r.Post("/sparql", s.handleSPARQL)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/data", s.handleDataUpload)
	})
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrap(err, errors.CodeServerStartFailure, "listen", errors.Field("addr", s.addr))
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.WithField("endpoint", "http://"+ln.Addr().String()+"/api/sparql").Info("server: listening")

	select {
	case err := <-errCh:
		return errors.Wrap(err, errors.CodeServerStartFailure, "serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, errors.CodeServerInternalFailure, "shutdown")
	}
	s.logger.Info("server: stopped")
	return <-errCh
}

// Stats summarizes the store for the health endpoint and the landing page.
type Stats struct {
	Triples     int `json:"triples"`
	NamedGraphs int `json:"named_graphs"`
}

func (s *Server) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Triples: s.store.Count()}
	for _, g := range s.store.NamedGraphs() {
		stats.NamedGraphs++
		stats.Triples += s.store.CountInGraph(g)
	}
	return stats
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"elapsed":    time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("server: request")
	})
}
