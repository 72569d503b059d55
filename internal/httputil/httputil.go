// Package httputil provides bounded body readers and the shared JSON error
// response writer.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ReadAllWithLimit reads at most limit bytes. The second return value reports
// whether the reader held more data than the limit.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		return nil, false, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return nil, false, err
	}
	// Probe one extra byte to detect truncation.
	var probe [1]byte
	n, err := r.Read(probe[:])
	if err != nil && err != io.EOF {
		return data, false, err
	}
	return data, n > 0, nil
}

// ReadAllStrict reads the full body and fails when it exceeds the limit.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	data, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("response exceeds %d byte limit", limit)
	}
	return data, nil
}

type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

// WriteErrorResponse writes the canonical JSON error envelope.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := errorBody{Code: code, Message: message, Details: details}
	if r != nil {
		body.TraceID = r.Header.Get("X-Trace-ID")
	}
	_ = json.NewEncoder(w).Encode(body)
}

// Unauthorized writes a 401 with an optional message.
func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "authentication required"
	}
	WriteErrorResponse(w, nil, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}
