// Package server exposes template upload, batch generation, previews and
// downloads over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rafaguilar/DynBanner-RenderGrid/internal/bundle"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/generate"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/ingest"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/logging"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/mapping"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/store"
)

// DefaultMaxUpload bounds request bodies.
const DefaultMaxUpload = 64 << 20

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// Server holds the collaborators of the HTTP handlers.
type Server struct {
	Store     *store.Store
	Generator *generate.Generator
	Suggester mapping.Suggester
	Sheets    *ingest.SheetFetcher
	// BaseAssetPath is used when a generate request names none.
	BaseAssetPath string
	MaxUpload     int64
	Logger        *zap.Logger
}

// New returns a server with the heuristic suggester and default limits.
func New(st *store.Store, gen *generate.Generator, logger *zap.Logger) *Server {
	return &Server{
		Store:     st,
		Generator: gen,
		Suggester: mapping.Heuristic{},
		Sheets:    ingest.NewSheetFetcher(),
		MaxUpload: DefaultMaxUpload,
		Logger:    logger,
	}
}

func (s *Server) log() *zap.Logger { return logging.OrNop(s.Logger) }

// Routes returns the router for the API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/generate", s.handleGenerate)
		r.Post("/generate-from-sheets", s.handleGenerateFromSheets)
		r.Post("/gsheet", s.handleSheet)
		r.Post("/mapping", s.handleMapping)
		r.Get("/variations", s.handleList)
		r.Delete("/variations/{bannerId}", s.handleDelete)
		r.Get("/download/{bannerId}", s.handleDownload)
		r.Get("/preview/{bannerId}/*", s.handlePreview)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log().Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// apiError is an error with the HTTP status it is reported with.
type apiError struct {
	Status int
	Msg    string
	Err    error
}

func (e *apiError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *apiError) Unwrap() error { return e.Err }

func badRequest(msg string, err error) *apiError {
	return &apiError{Status: http.StatusBadRequest, Msg: msg, Err: err}
}

// statusOf maps domain errors onto HTTP statuses.
func statusOf(err error) int {
	var ae *apiError
	switch {
	case errors.As(err, &ae):
		return ae.Status
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ingest.ErrSheetTabNotFound), errors.Is(err, generate.ErrRowNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrInvalidSheetURL), errors.Is(err, bundle.ErrNoEntryHTML),
		errors.Is(err, bundle.ErrEntryTooLarge), errors.Is(err, generate.ErrNoDynamicJS), errors.Is(err, ingest.ErrNoHeader):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrSheetUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.log().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "server error: " + msg
	}
	writeJSON(w, code, map[string]string{"error": msg})
}
