package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	gateway "github.com/mediagate/mediagate/internal"
)

// maxBodyBytes caps client request bodies; both request shapes are tiny.
const maxBodyBytes = 64 << 10

func (s *server) handleMedia(w http.ResponseWriter, r *http.Request) {
	var req gateway.MediaRequest
	if !decodeBody(w, r, &req) {
		return
	}

	m, err := s.deps.Media.Lookup(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *server) handleRelations(w http.ResponseWriter, r *http.Request) {
	var req gateway.RelationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	list, err := s.deps.Relations.Search(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		slog.LogAttrs(r.Context(), slog.LevelWarn, "undecodable request body",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: msgInvalidBody})
		return false
	}
	return true
}

// Client-facing error messages. Wrapped causes are logged, never returned.
const (
	msgInvalidBody   = "Invalid request body"
	msgBadRequest    = "Bad request"
	msgUpstreamError = "Request returned an error"
	msgUnavailable   = "Upstream service unavailable"
	msgMalformed     = "Upstream returned an invalid response"
	msgInternal      = "Internal server error"
)

type errorBody struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"errorCode,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.LogAttrs(r.Context(), level, "request failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)

	var upErr *gateway.UpstreamError
	if errors.As(err, &upErr) {
		writeJSON(w, status, errorBody{Error: msgUpstreamError, ErrorCode: upErr.StatusCode})
		return
	}
	writeJSON(w, status, errorBody{Error: clientMessage(err)})
}

func clientMessage(err error) string {
	var reqErr *gateway.RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.Msg
	case errors.Is(err, gateway.ErrBadRequest):
		return msgBadRequest
	case errors.Is(err, gateway.ErrUnavailable):
		return msgUnavailable
	case errors.Is(err, gateway.ErrMalformedResponse):
		return msgMalformed
	default:
		return msgInternal
	}
}

func errorStatus(err error) int {
	var upErr *gateway.UpstreamError
	switch {
	case errors.Is(err, gateway.ErrBadRequest), errors.As(err, &upErr):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, gateway.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
