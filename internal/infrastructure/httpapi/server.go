package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"ThesisScout/internal/config"
	"ThesisScout/internal/domain"
	"ThesisScout/internal/usecase"
)

const maxBodyBytes = 1 << 20

// Service is the set of use cases exposed over HTTP.
type Service interface {
	Ingest(ctx context.Context, indexURL string, maxArticles int) (domain.IngestResult, error)
	IngestURL(ctx context.Context, rawURL string) (domain.IngestResult, error)
	SearchKeyword(ctx context.Context, keyword string, maxResults int) (domain.IngestResult, error)
	Article(ctx context.Context, id string) (domain.Article, error)
	CreateThesis(ctx context.Context, title, text string) (domain.ThesisDocument, error)
	UpdateThesis(ctx context.Context, id, text string) (domain.ThesisDocument, error)
	SetThesisActive(ctx context.Context, id string, active bool) error
	Theses(ctx context.Context, activeOnly bool) ([]domain.ThesisDocument, error)
	Match(ctx context.Context, starredOnly bool, limit int) ([]domain.MatchResult, error)
	History(ctx context.Context, limit int) ([]domain.HistoryItem, error)
	ToggleStar(ctx context.Context, kind domain.RecordKind, id string) (bool, error)
	Delete(ctx context.Context, kind domain.RecordKind, id string) error
	MonitorStarred(ctx context.Context) (usecase.MonitorReport, error)
}

var _ Service = (*usecase.Pipeline)(nil)

// Server exposes the pipeline as a JSON REST API.
type Server struct {
	service Service
	router  *mux.Router
	handler http.Handler
	server  *http.Server
	logger  *slog.Logger
}

// NewServer registers routes and middleware.
func NewServer(cfg config.ServerConfig, service Service, logger *slog.Logger) *Server {
	s := &Server{service: service, router: mux.NewRouter(), logger: logger}
	s.routes()

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.router.Use(s.logRequests)
	// CORS wraps the router so preflight requests never reach method matching.
	s.handler = c.Handler(s.router)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe blocks until ctx is done, then shuts the server down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.info("http server listening", "addr", s.server.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.info("http server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/discover", s.handleDiscover).Methods(http.MethodPost)
	api.HandleFunc("/sources", s.handleAddSource).Methods(http.MethodPost)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	api.HandleFunc("/articles/{id}", s.handleGetArticle).Methods(http.MethodGet)

	api.HandleFunc("/theses", s.handleListTheses).Methods(http.MethodGet)
	api.HandleFunc("/theses", s.handleCreateThesis).Methods(http.MethodPost)
	api.HandleFunc("/theses/{id}", s.handleUpdateThesis).Methods(http.MethodPut)
	api.HandleFunc("/theses/{id}/active", s.handleSetActive).Methods(http.MethodPut)

	api.HandleFunc("/matches", s.handleMatches).Methods(http.MethodGet)
	api.HandleFunc("/monitor", s.handleMonitor).Methods(http.MethodPost)

	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/{kind}/{id}/star", s.handleToggleStar).Methods(http.MethodPost)
	api.HandleFunc("/history/{kind}/{id}", s.handleDelete).Methods(http.MethodDelete)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.MaxArticles < 0 {
		s.writeError(w, domain.InvalidInput("max_articles must not be negative"))
		return
	}
	result, err := s.service.Ingest(r.Context(), req.IndexURL, req.MaxArticles)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIngestResponse(result))
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	result, err := s.service.IngestURL(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIngestResponse(result))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.MaxResults < 0 {
		s.writeError(w, domain.InvalidInput("max_results must not be negative"))
		return
	}
	result, err := s.service.SearchKeyword(r.Context(), req.Keyword, req.MaxResults)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIngestResponse(result))
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	article, err := s.service.Article(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArticleDetail(article))
}

func (s *Server) handleListTheses(w http.ResponseWriter, r *http.Request) {
	theses, err := s.service.Theses(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]thesisView, 0, len(theses))
	for _, t := range theses {
		out = append(out, toThesisView(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateThesis(w http.ResponseWriter, r *http.Request) {
	var req thesisRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	thesis, err := s.service.CreateThesis(r.Context(), req.Title, req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toThesisView(thesis))
}

func (s *Server) handleUpdateThesis(w http.ResponseWriter, r *http.Request) {
	var req thesisRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	thesis, err := s.service.UpdateThesis(r.Context(), mux.Vars(r)["id"], req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toThesisView(thesis))
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.service.SetThesisActive(r.Context(), mux.Vars(r)["id"], req.Active); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, err)
		return
	}
	results, err := s.service.Match(r.Context(), r.URL.Query().Get("starred") == "true", limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMatchViews(results))
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.MonitorStarred(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMonitorResponse(report))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, err)
		return
	}
	items, err := s.service.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryViews(items))
}

func (s *Server) handleToggleStar(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, err := domain.ParseRecordKind(vars["kind"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	starred, err := s.service.ToggleStar(r.Context(), kind, vars["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"starred": starred})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, err := domain.ParseRecordKind(vars["kind"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.service.Delete(r.Context(), kind, vars["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	default:
		if s.logger != nil {
			s.logger.Error("request failed", "error", err)
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.InvalidInput("decode request body: %v", err)
	}
	return nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.InvalidInput("%s must be a non-negative integer", key)
	}
	return n, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.logger != nil {
			s.logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		}
	})
}

func (s *Server) info(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
