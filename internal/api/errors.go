package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// maxBodySize caps request bodies; only login carries one.
const maxBodySize = 1 << 20

// errorEnvelope is the body of every non-2xx response.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError answers with the error envelope. message is shown to clients
// and must not carry backend detail.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorDetail{Code: code, Message: message}})
}

// writeInternalError logs err against the request and answers with a
// generic 500. The cause never reaches the client.
func writeInternalError(w http.ResponseWriter, r *http.Request, logMsg string, err error) {
	slog.Error(logMsg,
		"error", err,
		"path", r.URL.Path,
		"request_id", RequestIDFromContext(r.Context()),
	)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("writing response body", "error", err)
	}
}

// readJSON decodes at most maxBodySize bytes of the request body into v.
func readJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
}
