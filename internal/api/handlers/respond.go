package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/isdelr/chirp-be/internal/apperr"
	"github.com/isdelr/chirp-be/internal/auth"
	"github.com/isdelr/chirp-be/internal/logger"
)

// maxBodyBytes bounds request bodies; the largest payload is a 500 character post.
const maxBodyBytes = 64 << 10

type errorResponse struct {
	Message string              `json:"message"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError writes err as a JSON error body. Unexpected errors are logged
// and reported without detail.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	if appErr, ok := apperr.As(err); ok && appErr.Kind != apperr.KindInternal {
		respondJSON(w, appErr.HTTPStatus(), errorResponse{Message: appErr.Message, Errors: appErr.Fields})
		return
	}

	logger.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
	respondJSON(w, http.StatusInternalServerError, errorResponse{Message: "Internal server error"})
}

// decodeJSON reads the request body into v. An unreadable body is reported
// like any other invalid input.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("Invalid input", []apperr.FieldError{{Field: "body", Message: "Malformed JSON body"}})
	}
	return nil
}

// caller returns the identity attached by the auth gate.
func caller(r *http.Request) (auth.Identity, error) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		return auth.Identity{}, errors.New("handler mounted without auth gate")
	}
	return id, nil
}
