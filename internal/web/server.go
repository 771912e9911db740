// Package web serves the NER App and About pages plus a small JSON API.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nerdemo/internal/annotate"
	"nerdemo/internal/metrics"
	"nerdemo/internal/session"
)

// Annotator is the part of *annotate.Annotator the server depends on.
type Annotator interface {
	AnnotateFrom(ctx context.Context, source, text string) ([]annotate.Annotation, error)
	ExcludedTags() []string
}

type Options struct {
	Addr        string
	Port        int
	Annotator   Annotator
	Sessions    *session.Store
	Logger      *zap.Logger
	AuditFile   string
	ReadTimeout time.Duration
	MaxBody     int64
	// SessionTTL bounds how long an idle session input is kept. Zero means
	// DefaultSessionTTL.
	SessionTTL time.Duration
}

const DefaultSessionTTL = 30 * time.Minute

type Server struct {
	httpServer *http.Server
	annotator  Annotator
	sessions   *session.Store
	logger     *zap.Logger
	auditFile  string
	port       int
	maxBody    int64
	startedAt  time.Time
	stopSweep  func()
}

func New(opts Options) *Server {
	s := &Server{
		annotator: opts.Annotator,
		sessions:  opts.Sessions,
		logger:    opts.Logger,
		auditFile: opts.AuditFile,
		port:      opts.Port,
		maxBody:   opts.MaxBody,
		startedAt: time.Now().UTC(),
	}
	if s.sessions == nil {
		s.sessions = session.NewStore()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.maxBody <= 0 {
		s.maxBody = 1 << 20
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	interval := max(min(ttl/2, time.Minute), time.Millisecond)
	s.stopSweep = s.sessions.StartSweeper(interval, ttl, func(n int) {
		s.logger.Debug("expired sessions", zap.Int("removed", n))
	})
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: opts.ReadTimeout,
		ReadTimeout:       opts.ReadTimeout,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s.instrument("index", s.handleIndex))
	mux.Handle("/suggest", s.instrument("suggest", s.handleSuggest))
	mux.Handle("/about", s.instrument("about", s.handleAbout))
	mux.Handle("/health", s.instrument("health", s.handleHealth))
	mux.Handle("/api/annotate", s.instrument("api_annotate", s.handleAPIAnnotate))
	mux.Handle("/api/labels", s.instrument("api_labels", s.handleAPILabels))
	mux.Handle("/api/stats", s.instrument("api_stats", s.handleAPIStats))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("nerdemo listening", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve is Start on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("nerdemo listening", zap.String("addr", l.Addr().String()))
	err := s.httpServer.Serve(l)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.stopSweep()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.logger.Debug("request",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
