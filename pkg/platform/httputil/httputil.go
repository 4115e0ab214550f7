// Package httputil writes warden's JSON responses and maps domain errors
// onto HTTP status codes and wire error codes.
package httputil

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	dErrors "warden/pkg/domain-errors"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	RetryAfter  int    `json:"retry_after,omitempty"`
}

type httpError struct {
	status int
	code   string
}

var internalError = httpError{http.StatusInternalServerError, "internal_error"}

var domainToHTTP = map[dErrors.Code]httpError{
	dErrors.CodeNotFound:           {http.StatusNotFound, "not_found"},
	dErrors.CodeBadRequest:         {http.StatusBadRequest, "bad_request"},
	dErrors.CodeInvalidInput:       {http.StatusBadRequest, "bad_request"},
	dErrors.CodeValidation:         {http.StatusBadRequest, "validation_error"},
	dErrors.CodeInvariantViolation: {http.StatusBadRequest, "validation_error"},
	dErrors.CodeConflict:           {http.StatusConflict, "conflict"},
	dErrors.CodeInvalidCredentials: {http.StatusUnauthorized, "invalid_credentials"},
	dErrors.CodeUnauthenticated:    {http.StatusUnauthorized, "unauthorized"},
	dErrors.CodeRateLimited:        {http.StatusTooManyRequests, "rate_limit_exceeded"},
	dErrors.CodeAccountLocked:      {http.StatusLocked, "account_locked"},
	dErrors.CodeBackendUnavailable: {http.StatusServiceUnavailable, "service_unavailable"},
	dErrors.CodeTimeout:            {http.StatusGatewayTimeout, "timeout"},
	dErrors.CodeInternal:           internalError,
}

func lookup(code dErrors.Code) httpError {
	if e, ok := domainToHTTP[code]; ok {
		return e
	}
	return internalError
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// the status line is already out; an encode failure cannot be reported
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError answers err. Domain errors keep their message; anything else is
// reported as an opaque internal error. Denials with a retry hint carry
// Retry-After and 401s carry a Bearer challenge.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		WriteJSON(w, internalError.status, ErrorResponse{Error: internalError.code})
		return
	}

	mapped := lookup(domainErr.Code)
	resp := ErrorResponse{Error: mapped.code, Description: domainErr.Message}
	if secs := RetryAfterSeconds(domainErr.RetryAfter); secs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		resp.RetryAfter = secs
	}
	if mapped.status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="warden"`)
	}
	WriteJSON(w, mapped.status, resp)
}

// RetryAfterSeconds rounds d up to whole seconds with a floor of one. Zero or
// negative d yields zero.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return max(1, int(math.Ceil(d.Seconds())))
}

func DomainCodeToHTTPStatus(code dErrors.Code) int {
	return lookup(code).status
}

func DomainCodeToHTTPCode(code dErrors.Code) string {
	return lookup(code).code
}
