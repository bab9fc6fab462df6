// Package api exposes the document store over HTTP. Identity is established
// upstream and arrives in the X-Actor-ID header.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/kiabasekou/ged-project/internal/audit"
	"github.com/kiabasekou/ged-project/internal/document"
	"github.com/kiabasekou/ged-project/internal/folder"
	"github.com/kiabasekou/ged-project/internal/metrics"
	"github.com/kiabasekou/ged-project/internal/signing"
)

// ActorHeader carries the authenticated caller.
const ActorHeader = "X-Actor-ID"

// Deps are the components the handlers call into.
type Deps struct {
	Documents *document.Manager
	Folders   *folder.Service
	Signer    *signing.Signer
	// Audit serves the audit trail endpoint. Optional.
	Audit   audit.RecordStore
	Metrics *metrics.Metrics
	// Gatherer backs /metrics. Optional.
	Gatherer       prometheus.Gatherer
	Logger         zerolog.Logger
	Address        string
	MaxUploadBytes int64
	CORSOrigins    []string
}

// Server exposes HTTP endpoints for documents and folders.
type Server struct {
	deps    Deps
	log     zerolog.Logger
	handler http.Handler
	server  *http.Server
	once    sync.Once
}

// New constructs a Server.
func New(deps Deps) *Server {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 100 << 20
	}
	s := &Server{deps: deps, log: deps.Logger}
	s.handler = s.routes()
	return s
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.deps.Address,
			Handler:           s.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("address", s.deps.Address).Msg("api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("POST /cases/{caseID}/documents", s.withActor(s.handleCreateDocument))
	mux.HandleFunc("GET /cases/{caseID}/documents", s.withActor(s.handleListDocuments))
	mux.HandleFunc("POST /cases/{caseID}/verify", s.withActor(s.handleVerifyCase))
	mux.HandleFunc("GET /cases/{caseID}/folders", s.withActor(s.handleListRoots))
	mux.HandleFunc("POST /cases/{caseID}/folders", s.withActor(s.handleCreateFolder))

	mux.HandleFunc("GET /documents/{id}", s.withActor(s.handleGetDocument))
	mux.HandleFunc("POST /documents/{id}/versions", s.withActor(s.handleNewVersion))
	mux.HandleFunc("GET /documents/{id}/history", s.withActor(s.handleHistory))
	mux.HandleFunc("POST /documents/{id}/restore", s.withActor(s.handleRestore))
	mux.HandleFunc("POST /documents/{id}/verify", s.withActor(s.handleVerify))
	mux.HandleFunc("GET /documents/{id}/content", s.withActor(s.handleDownload))
	mux.HandleFunc("POST /documents/{id}/signed-url", s.withActor(s.handleSignedURL))
	mux.HandleFunc("GET /download", s.withActor(s.handleSignedDownload))

	mux.HandleFunc("GET /folders/{id}", s.withActor(s.handleGetFolder))
	mux.HandleFunc("GET /folders/{id}/children", s.withActor(s.handleFolderChildren))
	mux.HandleFunc("GET /folders/{id}/path", s.withActor(s.handleFolderPath))
	mux.HandleFunc("GET /folders/{id}/tree", s.withActor(s.handleFolderTree))
	mux.HandleFunc("POST /folders/{id}/move", s.withActor(s.handleMoveFolder))

	if s.deps.Audit != nil {
		mux.HandleFunc("GET /audit/{subjectType}/{id}", s.withActor(s.handleAuditTrail))
	}

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actorHandler receives the caller identity resolved by withActor.
type actorHandler func(w http.ResponseWriter, r *http.Request, actor string)

func (s *Server) withActor(next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get(ActorHeader)
		if actor == "" {
			respondError(w, http.StatusUnauthorized, "missing_actor", "missing "+ActorHeader+" header")
			return
		}
		next(w, r, actor)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origins := s.deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", ActorHeader},
		ExposedHeaders: []string{"Content-Disposition", "X-Content-SHA256", "X-Document-Version"},
		MaxAge:         300,
	}).Handler(next)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.ObserveHTTP(r.Method, route, rec.status)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Str("actor", r.Header.Get(ActorHeader)).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
