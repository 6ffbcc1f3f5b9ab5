package civic

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bugsnag/bugsnag-go"
	"github.com/eljojo/civic/types"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// responseLogger wraps ResponseWriter to capture status code
type responseLogger struct {
	http.ResponseWriter
	status int
}

func (rl *responseLogger) WriteHeader(code int) {
	rl.status = code
	rl.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher interface by delegating to underlying ResponseWriter
func (rl *responseLogger) Flush() {
	if f, ok := rl.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ServerConfig wires the HTTP server.
type ServerConfig struct {
	Queries  *Resolvers
	Ledger   *Ledger
	Owner    types.FeedID // only the owner may import records
	Status   *StatusReporter
	Metrics  *Metrics
	Gatherer prometheus.Gatherer // prometheus.DefaultGatherer when nil

	ReportPanics bool // wrap the router in bugsnag.Handler
}

// Server is the public JSON API.
type Server struct {
	cfg        ServerConfig
	httpServer *http.Server
	listener   net.Listener
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{cfg: cfg}
}

// loggingMiddleware wraps an http.HandlerFunc with request/response logging
func (s *Server) loggingMiddleware(path string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseLogger{ResponseWriter: w, status: 200}
		handler(wrapped, r)

		took := time.Since(start)
		s.cfg.Metrics.observe(path, wrapped.status, took)
		logrus.Debugf("🌐 %s %s %d (%s)", r.Method, path, wrapped.status, took.Round(time.Millisecond))
	}
}

// Router builds the API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	route := func(path string, handler http.HandlerFunc, methods ...string) {
		r.HandleFunc(path, s.loggingMiddleware(path, handler)).Methods(methods...)
	}

	// Profiles
	route("/api/profile", s.httpProfileHandler, http.MethodGet)
	route("/api/profiles", s.httpProfilesHandler, http.MethodGet)
	route("/api/profile/alias", s.httpProfileByAliasHandler, http.MethodGet)
	route("/api/profile/followers", s.httpFollowersHandler, http.MethodGet)
	route("/api/profile/following", s.httpFollowingHandler, http.MethodGet)

	// Threads and votes
	route("/api/thread", s.httpThreadHandler, http.MethodGet)
	route("/api/threads", s.httpThreadsHandler, http.MethodGet)
	route("/api/votes", s.httpVotesHandler, http.MethodGet)

	// Room
	route("/api/room", s.httpRoomHandler, http.MethodGet)
	route("/api/room/invite", s.httpInviteHandler, http.MethodPost)

	// Owner-only import of records from a backup
	route("/api/records/import", s.httpRecordsImportHandler, http.MethodPost)

	route("/api/status", s.httpStatusHandler, http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return r
}

// Handler is the router plus panic reporting when enabled.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Router()
	if s.cfg.ReportPanics {
		h = bugsnag.Handler(h)
	}
	return h
}

// Start listens on httpAddr and serves in the background.
func (s *Server) Start(httpAddr string) error {
	listenInterface := httpAddr
	if listenInterface == "" {
		listenInterface = ":8080"
	}

	listener, err := net.Listen("tcp", listenInterface)
	if err != nil {
		return fmt.Errorf("listen error: %w", err)
	}
	s.listener = listener

	port := listener.Addr().(*net.TCPAddr).Port
	logrus.Printf("Listening for HTTP on port %d", port)

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("HTTP server error")
		}
	}()
	return nil
}

// Addr is the address the server listens on, once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
