package handlers

import (
	"net/http"

	"github.com/eldtechnologies/worldmorse/internal/models"
)

// OnlineStationsResponse represents the online stations response.
type OnlineStationsResponse struct {
	OK       bool             `json:"ok"`
	Stations []models.Station `json:"stations"`
}

// OnlineStations lists the stations on a channel. It prunes stale stations
// on every channel as a side effect.
func (h *Handler) OnlineStations(w http.ResponseWriter, r *http.Request) {
	channel := sanitize(r.URL.Query().Get("channel"), maxChannelLen)

	stations, err := h.relay.OnlineStations(r.Context(), channel)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, OnlineStationsResponse{OK: true, Stations: stations})
}
