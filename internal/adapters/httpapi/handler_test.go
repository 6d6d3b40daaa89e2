package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"songcatalog/internal/adapters/httpapi"
	"songcatalog/internal/core"
	"songcatalog/pkg/domain"
)

type searchResponse struct {
	Songs []domain.Song `json:"songs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func setupHandler(t *testing.T) (*core.Service, *httpapi.Handler) {
	t.Helper()
	reg := prometheus.NewRegistry()
	rec, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	svc := core.NewInMemoryService(core.WithMetricsRecorder(rec))
	if err := core.RegisterCatalogGauges(reg, svc); err != nil {
		t.Fatalf("gauges: %v", err)
	}
	handler := httpapi.NewHandler(svc, httpapi.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	return svc, handler
}

func do(t *testing.T, h http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body=%q)", err, resp.Body.String())
	}
	return out
}

func TestHandlerInsertAndGet(t *testing.T) {
	_, handler := setupHandler(t)

	resp := do(t, handler, http.MethodPost, "/api/v1/songs", `{"title":"Hey Jude","artist":"The Beatles","genre":"Rock"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	created := decode[domain.Song](t, resp)
	if created.ID != 1 || created.Title != "Hey Jude" || created.PlayCount != 0 {
		t.Fatalf("unexpected song %+v", created)
	}

	resp = do(t, handler, http.MethodGet, "/api/v1/songs/1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	if got := decode[domain.Song](t, resp); got != created {
		t.Fatalf("expected %+v, got %+v", created, got)
	}
}

func TestHandlerPlay(t *testing.T) {
	svc, handler := setupHandler(t)
	song, _ := svc.Insert(context.Background(), "So What", "Miles Davis", "Jazz")

	for i := 1; i <= 2; i++ {
		resp := do(t, handler, http.MethodPost, "/api/v1/songs/1/play", "")
		if resp.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", resp.Code)
		}
		if got := decode[domain.Song](t, resp); got.ID != song.ID || got.PlayCount != int64(i) {
			t.Fatalf("unexpected played song %+v", got)
		}
	}

	resp := do(t, handler, http.MethodPost, "/api/v1/songs/99/play", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if body := decode[errorResponse](t, resp); !strings.Contains(body.Error, "99") {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestHandlerSearch(t *testing.T) {
	svc, handler := setupHandler(t)
	ctx := context.Background()
	svc.Insert(ctx, "Hey Jude", "The Beatles", "Rock")
	svc.Insert(ctx, "Hey There Delilah", "Plain White T's", "Pop")
	svc.Insert(ctx, "Yesterday", "The Beatles", "Rock")

	cases := []struct {
		name   string
		target string
		want   int
	}{
		{"all", "/api/v1/songs", 3},
		{"title", "/api/v1/songs?title=Hey", 2},
		{"conjunction", "/api/v1/songs?title=Hey&artist=Beatles", 1},
		{"unknown field", "/api/v1/songs?year=1968", 0},
		{"no match", "/api/v1/songs?genre=Jazz", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, handler, http.MethodGet, tc.target, "")
			if resp.Code != http.StatusOK {
				t.Fatalf("unexpected status: %d", resp.Code)
			}
			if !strings.Contains(resp.Body.String(), `"songs":[`) {
				t.Fatalf("expected songs array, got %s", resp.Body.String())
			}
			if got := decode[searchResponse](t, resp); len(got.Songs) != tc.want {
				t.Fatalf("expected %d songs, got %+v", tc.want, got.Songs)
			}
		})
	}
}

func TestHandlerVisits(t *testing.T) {
	_, handler := setupHandler(t)
	for want := 1; want <= 3; want++ {
		resp := do(t, handler, http.MethodPost, "/api/v1/visits", "")
		if resp.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", resp.Code)
		}
		body := decode[map[string]int64](t, resp)
		if body["visits"] != int64(want) {
			t.Fatalf("expected %d visits, got %v", want, body)
		}
	}
}

func TestHandlerErrors(t *testing.T) {
	_, handler := setupHandler(t)
	cases := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"bad payload", http.MethodPost, "/api/v1/songs", "{", http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/v1/songs/abc", "", http.StatusBadRequest},
		{"zero id", http.MethodGet, "/api/v1/songs/0", "", http.StatusBadRequest},
		{"missing song", http.MethodGet, "/api/v1/songs/5", "", http.StatusNotFound},
		{"songs method", http.MethodDelete, "/api/v1/songs", "", http.StatusMethodNotAllowed},
		{"song method", http.MethodDelete, "/api/v1/songs/1", "", http.StatusMethodNotAllowed},
		{"play method", http.MethodGet, "/api/v1/songs/1/play", "", http.StatusMethodNotAllowed},
		{"visits method", http.MethodGet, "/api/v1/visits", "", http.StatusMethodNotAllowed},
		{"unknown action", http.MethodPost, "/api/v1/songs/1/skip", "", http.StatusNotFound},
		{"unknown path", http.MethodGet, "/api/v2/songs", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, handler, tc.method, tc.target, tc.body)
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d body=%s", tc.status, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestHandlerInsertRejectsOversizedBody(t *testing.T) {
	svc, handler := setupHandler(t)
	body := `{"title":"` + strings.Repeat("a", httpapi.MaxBodyBytes) + `","artist":"x","genre":"y"}`
	resp := do(t, handler, http.MethodPost, "/api/v1/songs", body)
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d body=%s", resp.Code, resp.Body.String())
	}
	if got := decode[errorResponse](t, resp); got.Error != "song payload too large" {
		t.Fatalf("unexpected error body %+v", got)
	}
	if svc.Len() != 0 {
		t.Fatalf("expected nothing inserted, got %d songs", svc.Len())
	}
}

func TestHandlerRequestID(t *testing.T) {
	_, handler := setupHandler(t)

	resp := do(t, handler, http.MethodGet, "/healthz", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	if _, err := uuid.Parse(resp.Header().Get(httpapi.RequestIDHeader)); err != nil {
		t.Fatalf("expected generated uuid request id, got %q", resp.Header().Get(httpapi.RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(httpapi.RequestIDHeader, "client-supplied")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(httpapi.RequestIDHeader); got != "client-supplied" {
		t.Fatalf("expected client request id to be echoed, got %q", got)
	}
}

func TestHandlerMetricsEndpoint(t *testing.T) {
	svc, handler := setupHandler(t)
	svc.Insert(context.Background(), "a", "b", "c")
	_ = do(t, handler, http.MethodPost, "/api/v1/visits", "")

	resp := do(t, handler, http.MethodGet, "/metrics", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	body := resp.Body.String()
	for _, want := range []string{"songcatalog_songs 1", "songcatalog_visits_total 1", `songcatalog_operations_total{operation="insert_song",status="success"} 1`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, body)
		}
	}

	bare := httpapi.NewHandler(core.NewInMemoryService())
	if resp := do(t, bare, http.MethodGet, "/metrics", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics handler, got %d", resp.Code)
	}
}

func TestHandlerDebugVarsEndpoint(t *testing.T) {
	rec := core.NewExpvarMetricsRecorder("")
	svc := core.NewInMemoryService(core.WithMetricsRecorder(rec))
	handler := httpapi.NewHandler(svc, httpapi.WithDebugVarsHandler(expvar.Handler()))
	_ = do(t, handler, http.MethodPost, "/api/v1/songs", `{"title":"a","artist":"b","genre":"c"}`)

	resp := do(t, handler, http.MethodGet, "/debug/vars", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	vars := decode[map[string]json.RawMessage](t, resp)
	var snap core.ExpvarMetricsSnapshot
	if err := json.Unmarshal(vars[rec.Name()], &snap); err != nil {
		t.Fatalf("decode %s: %v", rec.Name(), err)
	}
	if snap.Successes[core.OpInsert] != 1 {
		t.Fatalf("expected insert counted, got %+v", snap)
	}

	bare := httpapi.NewHandler(svc)
	if resp := do(t, bare, http.MethodGet, "/debug/vars", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without debug vars handler, got %d", resp.Code)
	}
}

type failingCatalog struct{ err error }

func (f failingCatalog) Insert(context.Context, string, string, string) (domain.Song, error) {
	return domain.Song{}, f.err
}
func (f failingCatalog) Play(context.Context, int64) (domain.Song, error) { return domain.Song{}, f.err }
func (f failingCatalog) Get(context.Context, int64) (domain.Song, error)  { return domain.Song{}, f.err }
func (f failingCatalog) Search(context.Context, domain.Constraints) ([]domain.Song, error) {
	return nil, f.err
}
func (f failingCatalog) Visit(context.Context) (int64, error) { return 0, f.err }

type captureLogger struct{ errors []string }

func (c *captureLogger) Debug(string, ...any)       {}
func (c *captureLogger) Info(string, ...any)        {}
func (c *captureLogger) Warn(string, ...any)        {}
func (c *captureLogger) Error(msg string, _ ...any) { c.errors = append(c.errors, msg) }

func TestHandlerInternalErrors(t *testing.T) {
	logger := &captureLogger{}
	handler := httpapi.NewHandler(failingCatalog{err: errors.New("boom")}, httpapi.WithLogger(logger))
	for _, target := range []struct{ method, path, body string }{
		{http.MethodPost, "/api/v1/songs", `{"title":"t"}`},
		{http.MethodGet, "/api/v1/songs", ""},
		{http.MethodGet, "/api/v1/songs/1", ""},
		{http.MethodPost, "/api/v1/songs/1/play", ""},
		{http.MethodPost, "/api/v1/visits", ""},
	} {
		resp := do(t, handler, target.method, target.path, target.body)
		if resp.Code != http.StatusInternalServerError {
			t.Fatalf("%s %s: expected 500, got %d", target.method, target.path, resp.Code)
		}
	}
	if len(logger.errors) != 5 {
		t.Fatalf("expected five logged failures, got %v", logger.errors)
	}

	unconfigured := httpapi.NewHandler(nil)
	if resp := do(t, unconfigured, http.MethodGet, "/api/v1/songs", ""); resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for missing catalog, got %d", resp.Code)
	}
}
