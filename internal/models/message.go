package models

import "time"

// TypeCWMorse is the message type used for keyed or translated Morse traffic.
const TypeCWMorse = "CW_MORSE"

// Payload is the free-form body of a message. The Morse path uses the
// "morse" and "textPreview" keys.
type Payload map[string]any

// Morse returns the serialized dot/dash signal, if any.
func (p Payload) Morse() string {
	s, _ := p["morse"].(string)
	return s
}

// TextPreview returns the plain-text rendering, if any.
func (p Payload) TextPreview() string {
	s, _ := p["textPreview"].(string)
	return s
}

// Message represents a signal relayed on a channel. Messages are immutable
// once created by the relay.
type Message struct {
	ID           string    `json:"id"` // ULID
	Timestamp    time.Time `json:"ts"`
	Channel      string    `json:"channel"`
	FromCallsign string    `json:"fromCallsign"`
	ToCallsign   *string   `json:"toCallsign"`
	Type         string    `json:"type"`
	Payload      Payload   `json:"payload"`
}
