package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "warden/pkg/domain-errors"
)

type credentials struct {
	AccountID string `json:"account_id"`
	Password  string `json:"password"`

	steps []string
}

func (c *credentials) Sanitize() {
	c.steps = append(c.steps, "sanitize")
	c.AccountID = strings.TrimSpace(c.AccountID)
}

func (c *credentials) Normalize() {
	c.steps = append(c.steps, "normalize")
	c.AccountID = strings.ToLower(c.AccountID)
}

func (c *credentials) Validate() error {
	c.steps = append(c.steps, "validate")
	if c.AccountID == "" {
		return errors.New("account_id is required")
	}
	if c.Password == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "password is required")
	}
	return nil
}

func decode(t *testing.T, body string) (*credentials, *httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	got, ok := DecodeAndPrepare[credentials](rec, req, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if ok {
		return got, rec, nil
	}
	require.Nil(t, got)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return nil, rec, resp
}

func TestDecodeAndPrepare(t *testing.T) {
	t.Run("runs preparation steps in order", func(t *testing.T) {
		got, _, _ := decode(t, `{"account_id":"  Alice@Example.com ","password":"pw"}`)
		require.NotNil(t, got)
		assert.Equal(t, "alice@example.com", got.AccountID)
		assert.Equal(t, []string{"sanitize", "normalize", "validate"}, got.steps)
	})

	t.Run("malformed bodies are bad requests", func(t *testing.T) {
		for name, body := range map[string]string{
			"syntax":        `{"account_id":`,
			"empty":         ``,
			"unknown field": `{"account_id":"a","password":"pw","admin":true}`,
			"trailing data": `{"account_id":"a","password":"pw"}{"x":1}`,
			"wrong type":    `{"account_id":42,"password":"pw"}`,
		} {
			_, rec, resp := decode(t, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, name)
			assert.Equal(t, "bad_request", resp["error"], name)
		}
	})

	t.Run("plain validation errors become validation_error", func(t *testing.T) {
		_, rec, resp := decode(t, `{"account_id":"   ","password":"pw"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_error", resp["error"])
		assert.Equal(t, "account_id is required", resp["error_description"])
	})

	t.Run("domain errors keep their code", func(t *testing.T) {
		_, _, resp := decode(t, `{"account_id":"alice"}`)
		assert.Equal(t, "bad_request", resp["error"])
		assert.Equal(t, "password is required", resp["error_description"])
	})
}

func TestDecodeAndPrepare_OversizedBody(t *testing.T) {
	body := `{"account_id":"` + strings.Repeat("a", 256) + `","password":"pw"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 64)

	_, ok := DecodeAndPrepare[credentials](rec, req, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.False(t, ok)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "request_too_large")
}

func TestPrepare_WithoutHooks(t *testing.T) {
	type plain struct{ Name string }
	assert.NoError(t, Prepare(&plain{}))
}
