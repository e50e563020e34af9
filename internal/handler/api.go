// Package handler contains the HTTP handlers for the fieldsync local API.
//
// The API is served by the agent daemon on the loopback interface and is
// consumed by field tooling (the bundled CLI, capture UIs). All request and
// response bodies are JSON.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/conformly/fieldsync/internal/domain"
)

// maxRequestBody bounds JSON request bodies. Evidence payloads are
// base64-encoded inline, so captures with photos can be large.
const maxRequestBody = 64 << 20 // 64 MB

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads the request body into v, rejecting unknown fields and
// oversized bodies. The returned error is a domain error suitable for
// ErrorResponse.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxErr):
			return domain.Invalid("", "Request body contains malformed JSON")
		case errors.As(err, &typeErr):
			return domain.Invalid("", "Request body contains an invalid value for field "+typeErr.Field)
		case errors.Is(err, io.EOF):
			return domain.Invalid("", "Request body must not be empty")
		default:
			return domain.Invalid("", "Request body could not be parsed")
		}
	}
	return nil
}
