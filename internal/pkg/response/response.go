// Package response writes the registry's legacy JSON envelope.
//
// Every domain endpoint answers {status:"ok", ...} or
// {status:"error", code, text} with an HTTP 200 status line; only raw
// download endpoints and the peer surface use plain HTTP statuses.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/offenes-grundbuch/registry/internal/pkg/apperr"
)

// envelope is the wire form of every domain response.
type envelope struct {
	Status string `json:"status"`
	Code   *int   `json:"code,omitempty"`
	Text   string `json:"text,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// OK writes {status:"ok"} with optional payload data.
func OK(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, envelope{Status: "ok", Data: data})
}

// Error writes the error envelope. The HTTP status line stays 200 for
// domain errors (legacy convention).
func Error(w http.ResponseWriter, err error) {
	e := apperr.As(err)
	write(w, http.StatusOK, envelope{Status: "error", Code: &e.Code, Text: e.Text})
}

// NotFound writes a plain 404 for raw download endpoints.
func NotFound(w http.ResponseWriter) {
	http.Error(w, "not found", http.StatusNotFound)
}

// PeerError writes a real HTTP error status for the cluster-local surface,
// where callers distinguish success by status code.
func PeerError(w http.ResponseWriter, status int, err error) {
	e := apperr.As(err)
	write(w, status, envelope{Status: "error", Code: &e.Code, Text: e.Text})
}

// PeerOK writes {status:"ok"} with a 200 status for the cluster-local
// surface.
func PeerOK(w http.ResponseWriter) {
	write(w, http.StatusOK, envelope{Status: "ok"})
}

func write(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		// Too late to change the response; nothing useful to do.
		_ = err
	}
}
