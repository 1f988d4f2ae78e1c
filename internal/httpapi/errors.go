package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/osservatorio-istat/platform/internal/apperr"
)

// ErrorResponse is the common failure envelope across every route: the
// RFC-7807-shaped {success, error_type, error_code, detail, instance,
// timestamp} body §4.H mandates, plus the structured details §7.1 wants
// for validation failures.
type ErrorResponse struct {
	Success   bool                   `json:"success"`
	ErrorType string                 `json:"error_type"`
	ErrorCode string                 `json:"error_code"`
	Detail    string                 `json:"detail"`
	Instance  string                 `json:"instance"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:           http.StatusBadRequest,
	apperr.KindSchema:               http.StatusBadRequest,
	apperr.KindUnauthorized:         http.StatusUnauthorized,
	apperr.KindForbidden:            http.StatusForbidden,
	apperr.KindRateLimited:          http.StatusTooManyRequests,
	apperr.KindNotFound:             http.StatusNotFound,
	apperr.KindConflict:             http.StatusConflict,
	apperr.KindUpstreamUnavailable:  http.StatusBadGateway,
	apperr.KindCircuitOpen:          http.StatusServiceUnavailable,
	apperr.KindAnalyticsUnavailable: http.StatusServiceUnavailable,
	apperr.KindInternal:             http.StatusInternalServerError,
}

// writeJSON marshals data as the response body, falling back to a bare
// 500 if encoding itself fails.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("httpapi: encode response failed")
	}
}

// writeError maps err to the stable error-code taxonomy and writes the
// common envelope. Any error that isn't an *apperr.Error collapses to
// INTERNAL_ERROR rather than leaking its native shape.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Wrap(apperr.KindInternal, "unexpected error", err)
	}

	status, ok := statusByKind[appErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	var up *unprocessableEntity
	if errors.As(err, &up) {
		status = http.StatusUnprocessableEntity
	}

	resp := ErrorResponse{
		Success:   false,
		ErrorType: http.StatusText(status),
		ErrorCode: string(appErr.Kind),
		Detail:    appErr.Message,
		Instance:  r.URL.Path,
		Details:   appErr.Details,
		Timestamp: time.Now().UTC(),
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(appErr).Str("request_id", requestIDFromContext(r.Context())).Msg("httpapi: internal error")
	}

	writeJSON(w, status, resp)
}

func validationError(message string, details map[string]interface{}) *apperr.Error {
	return apperr.New(apperr.KindValidation, message).WithDetails(details)
}

// unprocessableEntity marks the one validation failure §4.H reports as 422
// rather than 400: out-of-range pagination. The envelope code stays
// VALIDATION_ERROR.
type unprocessableEntity struct{ err *apperr.Error }

func (e *unprocessableEntity) Error() string { return e.err.Error() }
func (e *unprocessableEntity) Unwrap() error { return e.err }
