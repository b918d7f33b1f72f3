package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"alertd/internal/alert"
	logx "alertd/pkg/logx"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the engine's error classes to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, alert.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, alert.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, alert.ErrNotify):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error(), RequestID: requestID(r.Context())}
	var ve *alert.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			logx.String("request_id", resp.RequestID),
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Err(err),
		)
		// Internal detail stays in the log.
		resp.Error = http.StatusText(status)
	}
	writeJSON(w, status, resp)
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: requestID(r.Context())})
}
