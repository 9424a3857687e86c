package store

import (
	"context"
	"sync"
	"time"

	"github.com/eldtechnologies/worldmorse/internal/models"
)

// MemoryStore keeps stations and messages in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	stations map[string]*models.Station
	channels map[string][]models.Message
	cap      int
}

// NewMemoryStore creates an in-memory store. channelCap <= 0 uses
// DefaultChannelCap.
func NewMemoryStore(channelCap int) *MemoryStore {
	if channelCap <= 0 {
		channelCap = DefaultChannelCap
	}
	return &MemoryStore{
		stations: make(map[string]*models.Station),
		channels: make(map[string][]models.Message),
		cap:      channelCap,
	}
}

// Name returns the backend name.
func (s *MemoryStore) Name() string { return "memory" }

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() {}

// RegisterStation creates or refreshes a station.
func (s *MemoryStore) RegisterStation(ctx context.Context, callsign string, now time.Time) (*models.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stations[callsign]
	if !ok {
		st = &models.Station{Callsign: callsign}
		s.stations[callsign] = st
	}
	st.LastSeenAt = now
	return copyStation(st), nil
}

// JoinStation creates or refreshes a station and tunes it to channel.
func (s *MemoryStore) JoinStation(ctx context.Context, callsign, channel string, now time.Time) (*models.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stations[callsign]
	if !ok {
		st = &models.Station{Callsign: callsign}
		s.stations[callsign] = st
	}
	if channel != "" {
		ch := channel
		st.Channel = &ch
	}
	st.LastSeenAt = now
	return copyStation(st), nil
}

// TouchStation refreshes a known station.
func (s *MemoryStore) TouchStation(ctx context.Context, callsign string, channel *string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stations[callsign]
	if !ok {
		return false, nil
	}
	st.LastSeenAt = now
	if channel != nil {
		ch := *channel
		st.Channel = &ch
	}
	return true, nil
}

// ListStations prunes stale stations and lists a channel.
func (s *MemoryStore) ListStations(ctx context.Context, channel string, cutoff time.Time) ([]models.Station, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	list := make([]models.Station, 0)
	for callsign, st := range s.stations {
		if st.LastSeenAt.Before(cutoff) {
			delete(s.stations, callsign)
			pruned++
			continue
		}
		if st.OnChannel(channel) {
			list = append(list, *copyStation(st))
		}
	}
	sortStations(list)
	return list, pruned, nil
}

// AppendMessage adds a message to its channel.
func (s *MemoryStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := append(s.channels[msg.Channel], *msg)
	if over := len(log) - s.cap; over > 0 {
		log = append([]models.Message(nil), log[over:]...)
	}
	s.channels[msg.Channel] = log
	return nil
}

// RecentMessages returns the tail of a channel.
func (s *MemoryStore) RecentMessages(ctx context.Context, channel string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.channels[channel]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]models.Message, len(log))
	copy(out, log)
	return out, nil
}

func copyStation(st *models.Station) *models.Station {
	c := *st
	if st.Channel != nil {
		ch := *st.Channel
		c.Channel = &ch
	}
	return &c
}
