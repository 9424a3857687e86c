package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/worldmorse/internal/relay"
)

const (
	maxCallsignLen = 32
	maxChannelLen  = 64
	maxTypeLen     = 32
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	relay    *relay.Service
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new Handler over the relay service.
func NewHandler(svc *relay.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		relay:  svc,
		logger: logger.With().Str("component", "handlers").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers connect from any origin, as with CORS
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, code string) {
	h.JSON(w, status, ErrorResponse{OK: false, Error: code})
}

// Fail maps a relay error to a response: validation errors keep their code,
// anything else is an internal error.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *relay.ValidationError
	if errors.As(err, &verr) {
		h.Error(w, http.StatusBadRequest, verr.Code)
		return
	}
	h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	h.Error(w, http.StatusInternalServerError, "internal_error")
}

// ErrFieldTooLong rejects a body or subscription field over its length limit.
var ErrFieldTooLong = &relay.ValidationError{Code: "field_too_long"}

// sanitizeField is sanitize for fields that are stored: instead of being
// truncated, an over-long value is rejected.
func sanitizeField(s string, max int) (string, error) {
	clean := sanitize(s, len(s))
	if len(clean) > max {
		return "", ErrFieldTooLong
	}
	return clean, nil
}

// sanitize trims s, removes control characters and limits it to max bytes.
func sanitize(s string, max int) string {
	s = strings.TrimSpace(s)

	// Remove control characters
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	if len(s) > max {
		s = strings.ToValidUTF8(s[:max], "")
	}

	return s
}
