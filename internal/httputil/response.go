package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/R3E-Network/cause_registry/internal/errors"
	"github.com/R3E-Network/cause_registry/internal/logging"
)

// ErrorEnvelope is the body of every error response.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError writes err as an error envelope. Errors that are not service
// errors become INTERNAL.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("internal error", err)
	}
	WriteJSON(w, se.HTTPStatus, ErrorEnvelope{Error: ErrorBody{
		Code:    string(se.Code),
		Message: se.Message,
		Details: se.Details,
		TraceID: logging.GetTraceID(r.Context()),
	}})
}
