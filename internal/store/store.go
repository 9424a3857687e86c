package store

import (
	"context"
	"time"

	"github.com/eldtechnologies/worldmorse/internal/models"
)

// StationStore is the presence table, keyed by normalized call-sign.
// Callers pass normalized call-signs and serialize writes.
type StationStore interface {
	// RegisterStation creates the station with no channel, or refreshes
	// LastSeenAt on an existing one while keeping its channel.
	RegisterStation(ctx context.Context, callsign string, now time.Time) (*models.Station, error)

	// JoinStation creates or refreshes the station and tunes it to channel.
	JoinStation(ctx context.Context, callsign, channel string, now time.Time) (*models.Station, error)

	// TouchStation refreshes LastSeenAt, and the channel when non-nil.
	// It reports false if the call-sign is unknown.
	TouchStation(ctx context.Context, callsign string, channel *string, now time.Time) (bool, error)

	// ListStations removes every station last seen before cutoff, from the
	// whole table, then returns the stations tuned to channel.
	ListStations(ctx context.Context, channel string, cutoff time.Time) (stations []models.Station, pruned int, err error)
}

// MessageLog is the append-only per-channel message history.
type MessageLog interface {
	// AppendMessage adds msg to the tail of its channel, evicting the oldest
	// messages past the configured cap.
	AppendMessage(ctx context.Context, msg *models.Message) error

	// RecentMessages returns up to limit most recent messages of channel in
	// arrival order.
	RecentMessages(ctx context.Context, channel string, limit int) ([]models.Message, error)
}

// DataStore is a complete backend for the relay.
// MemoryStore, RedisStore, SQLiteStore and PostgresStore implement it.
type DataStore interface {
	StationStore
	MessageLog

	// Connection management
	Name() string
	Ping(ctx context.Context) error
	Close()
}

// DefaultChannelCap bounds each channel's history when no cap is configured.
const DefaultChannelCap = 1000
