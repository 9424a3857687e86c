package models

import (
	"encoding/json"
	"time"
)

// EventKind identifies a push event on a subscription.
type EventKind string

const (
	// Server -> client
	KindHello   EventKind = "hello"
	KindStation EventKind = "station"
	KindMessage EventKind = "message"

	// Client -> server
	KindPing EventKind = "ping"
)

// ActionJoin is the only station action announced over push.
const ActionJoin = "join"

// Event is a single record written to (or read from) a push subscription.
type Event struct {
	Kind    EventKind `json:"kind"`
	OK      bool      `json:"ok,omitempty"`
	TS      time.Time `json:"ts,omitzero"`
	Action  string    `json:"action,omitempty"`
	Station *Station  `json:"station,omitempty"`
	Message *Message  `json:"message,omitempty"`
}

// ParseEvent decodes a push event. Callers drop events that fail to parse.
func ParseEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
