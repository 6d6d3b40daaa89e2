// Package httpapi exposes the catalog service over JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"songcatalog/internal/core"
	"songcatalog/pkg/domain"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

const songsPath = "/api/v1/songs"

// MaxBodyBytes caps request payloads.
const MaxBodyBytes = 1 << 20

// Catalog is the service surface the handler needs.
type Catalog interface {
	Insert(ctx context.Context, title, artist, genre string) (domain.Song, error)
	Play(ctx context.Context, id int64) (domain.Song, error)
	Get(ctx context.Context, id int64) (domain.Song, error)
	Search(ctx context.Context, constraints domain.Constraints) ([]domain.Song, error)
	Visit(ctx context.Context) (int64, error)
}

// Handler routes catalog requests. Metrics, when set, is served at /metrics
// and DebugVars at /debug/vars.
type Handler struct {
	Catalog   Catalog
	Metrics   http.Handler
	DebugVars http.Handler
	Logger    core.Logger
}

// NewHandler constructs a catalog HTTP handler.
func NewHandler(c Catalog, opts ...Option) *Handler {
	h := &Handler{Catalog: c}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Option customises a Handler.
type Option func(*Handler)

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(metrics http.Handler) Option {
	return func(h *Handler) { h.Metrics = metrics }
}

// WithDebugVarsHandler serves h at /debug/vars.
func WithDebugVarsHandler(vars http.Handler) Option {
	return func(h *Handler) { h.DebugVars = vars }
}

// WithLogger sets the request logger.
func WithLogger(logger core.Logger) Option {
	return func(h *Handler) { h.Logger = logger }
}

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned to the current request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)
	r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	h.route(rec, r)
	if h.Logger != nil {
		h.Logger.Debug("http request", "request_id", requestID, "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	}
}

func (h *Handler) route(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/healthz":
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	case path == "/metrics":
		if h.Metrics == nil {
			http.NotFound(w, r)
			return
		}
		h.Metrics.ServeHTTP(w, r)
	case path == "/debug/vars":
		if h.DebugVars == nil {
			http.NotFound(w, r)
			return
		}
		h.DebugVars.ServeHTTP(w, r)
	case h.Catalog == nil:
		writeError(w, http.StatusInternalServerError, "song catalog not configured")
	case path == "/api/v1/visits":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleVisit(w, r)
	case path == songsPath:
		switch r.Method {
		case http.MethodGet:
			h.handleSearch(w, r)
		case http.MethodPost:
			h.handleInsert(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case strings.HasPrefix(path, songsPath+"/"):
		h.handleSong(w, r, strings.TrimPrefix(path, songsPath+"/"))
	default:
		http.NotFound(w, r)
	}
}

type insertRequest struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Genre  string `json:"genre"`
}

func (h *Handler) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "song payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid song payload")
		return
	}
	song, err := h.Catalog.Insert(r.Context(), req.Title, req.Artist, req.Genre)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, song)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	constraints := domain.Constraints{}
	for field, values := range r.URL.Query() {
		if len(values) > 0 {
			constraints[field] = values[0]
		}
	}
	songs, err := h.Catalog.Search(r.Context(), constraints)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if songs == nil {
		songs = []domain.Song{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"songs": songs})
}

func (h *Handler) handleSong(w http.ResponseWriter, r *http.Request, remainder string) {
	rawID, action, _ := strings.Cut(remainder, "/")
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid song id")
		return
	}
	var song domain.Song
	switch {
	case action == "" && r.Method == http.MethodGet:
		song, err = h.Catalog.Get(r.Context(), id)
	case action == "play" && r.Method == http.MethodPost:
		song, err = h.Catalog.Play(r.Context(), id)
	case action == "" || action == "play":
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

func (h *Handler) handleVisit(w http.ResponseWriter, r *http.Request) {
	visits, err := h.Catalog.Visit(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"visits": visits})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var nf domain.ErrNotFound
	if errors.As(err, &nf) {
		writeError(w, http.StatusNotFound, nf.Error())
		return
	}
	if h.Logger != nil {
		h.Logger.Error("request failed", "request_id", RequestIDFromContext(r.Context()), "error", err)
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
