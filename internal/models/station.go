package models

import (
	"strings"
	"time"
)

// Station represents an operator present on the air under a call-sign.
type Station struct {
	Callsign   string    `json:"callsign"`
	Channel    *string   `json:"channel"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// OnChannel reports whether the station is tuned to channel.
func (s *Station) OnChannel(channel string) bool {
	return s.Channel != nil && *s.Channel == channel
}

// NormalizeCallsign trims and uppercases a call-sign.
func NormalizeCallsign(callsign string) string {
	return strings.ToUpper(strings.TrimSpace(callsign))
}
