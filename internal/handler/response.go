package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/freeholdgames/stellar-dominion/internal/gameerr"
	"github.com/freeholdgames/stellar-dominion/internal/logger"
	"github.com/freeholdgames/stellar-dominion/internal/service"
)

// errorBody is the envelope every failed request carries.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	Details       map[string]any `json:"details,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// actionEnvelope wraps a mutation result together with any balance warnings
// the action picked up during validation.
type actionEnvelope struct {
	Result   any      `json:"result"`
	Warnings []string `json:"warnings,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

// writeError writes an error envelope for failures that never reach the
// service layer, such as unreadable request bodies.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeDomainError maps a service error onto the envelope. Internal errors
// log the cause and expose only a correlation id to the client.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := gameerr.KindOf(err)
	detail := errorDetail{
		Code:    kind.String(),
		Message: gameerr.MessageOf(err),
		Details: gameerr.DetailsOf(err),
	}
	if kind == gameerr.KindInternal {
		detail.CorrelationID = logger.RequestIDFromContext(r.Context())
		log.Error().Err(err).Str("request_id", detail.CorrelationID).Msg("Request failed")
	}
	writeJSON(w, kind.HTTPStatus(), errorBody{Error: detail})
}

// writeAction writes the result of a gateway action, surfacing non-fatal
// balance warnings alongside the payload.
func writeAction(w http.ResponseWriter, status int, out any, res *service.ValidationResult) {
	env := actionEnvelope{Result: out}
	if res != nil {
		env.Warnings = res.Warnings
	}
	writeJSON(w, status, env)
}

// decodeJSON reads and decodes JSON from a request body.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
