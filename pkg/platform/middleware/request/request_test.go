package request

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/pkg/requestcontext"
)

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	t.Run("generated when absent", func(t *testing.T) {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
		assert.Len(t, seen, 36)
		assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
	})

	t.Run("client value kept when well formed", func(t *testing.T) {
		for _, id := range []string{"req-42", "trace.span_7", strings.Repeat("a", MaxRequestIDLength)} {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			req.Header.Set(HeaderRequestID, id)
			rec := serve(h, req)
			assert.Equal(t, id, seen)
			assert.Equal(t, id, rec.Header().Get(HeaderRequestID))
		}
	})

	t.Run("unsafe client value replaced", func(t *testing.T) {
		for name, id := range map[string]string{
			"too long":  strings.Repeat("a", MaxRequestIDLength+1),
			"newline":   "ok\nlevel=ERROR forged",
			"space":     "a b",
			"quote":     `a"b`,
			"null byte": "a\x00b",
			"unicode":   "réq",
		} {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			req.Header.Set(HeaderRequestID, id)
			serve(h, req)
			assert.NotEqual(t, id, seen, name)
			assert.Len(t, seen, 36, name)
		}
	})
}

func TestRecovery(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/auth/login", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body["error"])
	assert.Contains(t, logs.String(), "panic recovered")
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	h := Recovery(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLogger(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	r := chi.NewRouter()
	r.Use(Logger(logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {})
	r.Post("/admin/accounts/{account_id}/unlock", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Empty(t, logs.String(), "healthy probes are not logged")

	req := httptest.NewRequest(http.MethodPost, "/admin/accounts/alice@example.com/unlock", nil)
	req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), "203.0.113.77", ""))
	serve(r, req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &line))
	assert.Equal(t, "/admin/accounts/{account_id}/unlock", line["route"])
	assert.EqualValues(t, http.StatusNoContent, line["status"])
	assert.Equal(t, "203.0.113.0", line["client_prefix"])
	assert.NotContains(t, logs.String(), "alice@example.com")
}

func TestContentTypeJSON(t *testing.T) {
	h := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		method, contentType string
		want                int
	}{
		{http.MethodPost, "application/json", http.StatusNoContent},
		{http.MethodPost, "application/json; charset=utf-8", http.StatusNoContent},
		{http.MethodPost, "", http.StatusNoContent},
		{http.MethodPost, "text/plain", http.StatusUnsupportedMediaType},
		{http.MethodPatch, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{http.MethodPost, "not a media type;;", http.StatusUnsupportedMediaType},
		{http.MethodGet, "text/plain", http.StatusNoContent},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, "/auth/login", strings.NewReader("{}"))
		if tt.contentType != "" {
			req.Header.Set("Content-Type", tt.contentType)
		}
		rec := serve(h, req)
		assert.Equal(t, tt.want, rec.Code, "%s %q", tt.method, tt.contentType)
		if tt.want == http.StatusUnsupportedMediaType {
			assert.Contains(t, rec.Body.String(), "invalid_content_type")
		}
	}
}

func TestTimeout(t *testing.T) {
	h := Timeout(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"timeout"`)
}

func TestInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	r := chi.NewRouter()
	r.Use(Instrument(m))
	r.Post("/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	serve(r, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	serve(r, httptest.NewRequest(http.MethodPost, "/auth/login", nil))

	assert.InDelta(t, 2, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodPost, "/auth/login", "429")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.Duration))
}

func TestInstrument_NilMetricsIsPassThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	rec := serve(Instrument(nil)(next), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
