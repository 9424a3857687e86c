package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/eldtechnologies/worldmorse/internal/models"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Callsign string `json:"callsign"`
}

// RegisterResponse represents the registration response.
type RegisterResponse struct {
	OK      bool            `json:"ok"`
	Station *models.Station `json:"station"`
}

// Register handles station registration. Registering a call-sign that is
// already on the air succeeds and takes it over.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid_json")
		return
	}

	callsign, err := sanitizeField(req.Callsign, maxCallsignLen)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	station, err := h.relay.RegisterStation(r.Context(), callsign)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, RegisterResponse{OK: true, Station: station})
}
