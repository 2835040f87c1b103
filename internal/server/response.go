package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/GustavPetterssonBjorklund/Statix/internal/identity"
	"github.com/GustavPetterssonBjorklund/Statix/internal/logging"
	"github.com/GustavPetterssonBjorklund/Statix/internal/nodeauth"
	"github.com/GustavPetterssonBjorklund/Statix/internal/repository"
)

// writeJSON encodes v with the given status. Encoding failures are logged;
// the status line is already gone by then.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logging.WithComponent("http")
		log.Error().Err(err).Msg("encode response")
	}
}

// errorBody is the uniform error envelope.
type errorBody struct {
	Error string `json:"error"`
}

// writeError maps service errors onto the HTTP taxonomy. Unrecognized errors
// become an opaque 500 and are logged with the request path.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, nodeauth.ErrInvalidNodeToken):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})

	case errors.Is(err, identity.ErrAccountDisabled),
		errors.Is(err, identity.ErrNotBootstrapEligible):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})

	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})

	case errors.Is(err, identity.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})

	case errors.Is(err, identity.ErrLastAdmin),
		errors.Is(err, identity.ErrUnknownRole),
		errors.Is(err, identity.ErrUnknownPermission),
		errors.Is(err, identity.ErrNoRoles),
		errors.Is(err, identity.ErrInvalidEmail):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})

	default:
		log := logging.WithComponent("http")
		log.Error().Err(err).
			Str("path", r.URL.Path).Msg("internal error")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// writeBadRequest reports a request-shape problem (missing field, bad JSON).
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// decodeJSON reads a request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(dst)
}
