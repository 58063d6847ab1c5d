package middleware

import (
	"encoding/json"
	"errors"
	"maps"
	"net/http"
)

// envelope wraps JSON responses emitted before a request reaches a handler.
type envelope map[string]any

// errorResponse sends a JSON error body. When even that fails, the client
// gets a bare 500.
func errorResponse(w http.ResponseWriter, status int, message any) {
	if err := writeJSON(w, status, envelope{"error": message}, nil); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, data envelope, headers http.Header) error {
	js, err := json.Marshal(data)
	if err != nil {
		return errors.New("failed to encode json")
	}

	maps.Copy(w.Header(), headers)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)

	return nil
}
