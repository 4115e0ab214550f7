package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "warden/pkg/domain-errors"
	"warden/pkg/requestcontext"
)

// Sanitizable request bodies clean up raw input (trimming) before checks.
type Sanitizable interface {
	Sanitize()
}

// Normalizable request bodies bring values to their canonical form.
type Normalizable interface {
	Normalize()
}

// Validatable request bodies report the first invalid field.
type Validatable interface {
	Validate() error
}

var errTrailingData = errors.New("unexpected data after JSON body")

// DecodeJSON reads exactly one JSON object from the body into T. Unknown
// fields and trailing data are rejected.
func DecodeJSON[T any](r *http.Request) (*T, error) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var v T
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return &v, nil
}

// Prepare runs Sanitize, Normalize and Validate, each only if req implements it.
func Prepare(req any) error {
	if s, ok := req.(Sanitizable); ok {
		s.Sanitize()
	}
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := req.(Validatable); ok {
		if err := v.Validate(); err != nil {
			var domainErr *dErrors.Error
			if errors.As(err, &domainErr) {
				return err
			}
			return dErrors.New(dErrors.CodeValidation, err.Error())
		}
	}
	return nil
}

// DecodeAndPrepare decodes and prepares a T from the request body. On
// failure it has already written the error response and returns false.
//
//	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger)
//	if !ok {
//		return
//	}
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	ctx := r.Context()

	req, err := DecodeJSON[T](r)
	if err != nil {
		logger.InfoContext(ctx, "rejected request body",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error":             "request_too_large",
				"error_description": "request body too large",
			})
			return nil, false
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}

	if err := Prepare(req); err != nil {
		logger.InfoContext(ctx, "invalid request",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
