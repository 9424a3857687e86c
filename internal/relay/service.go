// Package relay is the network-independent core of the relay: station
// presence, per-channel history and push fan-out.
package relay

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/worldmorse/internal/metrics"
	"github.com/eldtechnologies/worldmorse/internal/models"
	"github.com/eldtechnologies/worldmorse/internal/store"
)

const (
	// DefaultPresenceTimeout is how long a station stays online without
	// being seen.
	DefaultPresenceTimeout = 60 * time.Second

	DefaultRecentLimit = 100
	MaxRecentLimit     = 500
)

// Options configures a Service. Zero values select the defaults.
type Options struct {
	PresenceTimeout  time.Duration
	SubscriberBuffer int
	Now              func() time.Time
}

// Service owns the station registry and channel log of one store and is
// their only writer. Mutations are serialized; reads may run concurrently.
type Service struct {
	mu      sync.RWMutex
	store   store.DataStore
	hub     *Hub
	timeout time.Duration
	now     func() time.Time
	entropy io.Reader // guarded by mu
	logger  zerolog.Logger
}

// NewService creates a relay over ds.
func NewService(ds store.DataStore, logger zerolog.Logger, opts Options) *Service {
	if opts.PresenceTimeout <= 0 {
		opts.PresenceTimeout = DefaultPresenceTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:   ds,
		hub:     NewHub(opts.SubscriberBuffer, logger),
		timeout: opts.PresenceTimeout,
		now:     opts.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
		logger:  logger.With().Str("component", "relay").Logger(),
	}
}

// Store returns the backing store.
func (s *Service) Store() store.DataStore {
	return s.store
}

// Hub returns the push fan-out hub.
func (s *Service) Hub() *Hub {
	return s.hub
}

// PresenceTimeout returns the configured presence window.
func (s *Service) PresenceTimeout() time.Duration {
	return s.timeout
}

// Submission is the input of SubmitMessage.
type Submission struct {
	FromCallsign string
	ToCallsign   *string
	Channel      string
	Type         string
	Payload      models.Payload
}

// RegisterStation creates or refreshes the station for callsign. A call-sign
// already in use is overwritten, never rejected.
func (s *Service) RegisterStation(ctx context.Context, callsign string) (*models.Station, error) {
	callsign = models.NormalizeCallsign(callsign)
	if callsign == "" {
		return nil, s.reject(ErrCallsignRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	done := s.observe("register")
	station, err := s.store.RegisterStation(ctx, callsign, s.now())
	done()
	if err != nil {
		return nil, fmt.Errorf("register station: %w", err)
	}

	metrics.StationsRegistered.Inc()
	s.logger.Debug().Str("callsign", callsign).Msg("Station registered")
	return station, nil
}

// SubmitMessage validates sub, stores it as a new message and pushes it to
// every subscriber of its channel. Nothing is stored or pushed on error.
func (s *Service) SubmitMessage(ctx context.Context, sub Submission) (*models.Message, error) {
	from := models.NormalizeCallsign(sub.FromCallsign)
	channel := strings.TrimSpace(sub.Channel)
	typ := strings.TrimSpace(sub.Type)

	switch {
	case from == "":
		return nil, s.reject(ErrFromCallsignRequired)
	case channel == "":
		return nil, s.reject(ErrChannelRequired)
	case typ == "":
		return nil, s.reject(ErrTypeRequired)
	}

	var to *string
	if sub.ToCallsign != nil {
		if n := models.NormalizeCallsign(*sub.ToCallsign); n != "" {
			to = &n
		}
	}
	payload := sub.Payload
	if payload == nil {
		payload = models.Payload{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	msg := &models.Message{
		ID:           ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
		Timestamp:    now,
		Channel:      channel,
		FromCallsign: from,
		ToCallsign:   to,
		Type:         typ,
		Payload:      payload,
	}

	done := s.observe("append")
	err := s.store.AppendMessage(ctx, msg)
	done()
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	metrics.MessagesSubmitted.WithLabelValues(typ).Inc()

	n := s.publish(channel, models.Event{Kind: models.KindMessage, Message: msg})
	s.logger.Debug().
		Str("id", msg.ID).
		Str("from", from).
		Str("channel", channel).
		Int("subscribers", n).
		Msg("Message relayed")

	return msg, nil
}

// RecentMessages returns the latest messages of channel in arrival order.
// limit is clamped to [1, MaxRecentLimit]; zero selects DefaultRecentLimit.
func (s *Service) RecentMessages(ctx context.Context, channel string, limit int) ([]models.Message, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, s.reject(ErrChannelRequired)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	done := s.observe("recent")
	messages, err := s.store.RecentMessages(ctx, channel, ClampLimit(limit))
	done()
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return messages, nil
}

// ClampLimit applies the recent-messages limit policy.
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultRecentLimit
	case limit < 1:
		return 1
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	}
	return limit
}

// OnlineStations prunes every station not seen within the presence timeout,
// on any channel, then lists the stations tuned to channel.
func (s *Service) OnlineStations(ctx context.Context, channel string) ([]models.Station, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, s.reject(ErrChannelRequired)
	}

	// Pruning writes, so this takes the write lock.
	s.mu.Lock()
	defer s.mu.Unlock()

	done := s.observe("list_stations")
	stations, pruned, err := s.store.ListStations(ctx, channel, s.now().Add(-s.timeout))
	done()
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	if pruned > 0 {
		metrics.StationsPruned.Add(float64(pruned))
		s.logger.Debug().Int("pruned", pruned).Msg("Pruned stale stations")
	}
	return stations, nil
}

// Attach opens a push subscription. The first event queued is always hello.
// With a call-sign, the station is created or refreshed and tuned to channel,
// and other subscribers of channel are told it joined. Either parameter may
// be empty; a subscriber without a channel receives nothing but hello.
func (s *Service) Attach(ctx context.Context, callsign, channel string) (*Subscriber, error) {
	callsign = models.NormalizeCallsign(callsign)
	channel = strings.TrimSpace(channel)

	sub := s.hub.NewSubscriber(callsign, channel)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	hello, err := json.Marshal(models.Event{Kind: models.KindHello, OK: true, TS: now})
	if err != nil {
		return nil, err
	}
	sub.enqueue(hello)

	if callsign != "" {
		done := s.observe("join")
		station, err := s.store.JoinStation(ctx, callsign, channel, now)
		done()
		if err != nil {
			return nil, fmt.Errorf("join station: %w", err)
		}
		if channel != "" {
			// sub is not in the hub yet, so it never sees its own join
			s.publish(channel, models.Event{Kind: models.KindStation, Action: models.ActionJoin, Station: station})
		}
	}

	s.hub.Add(sub)
	s.logger.Info().
		Str("subscriber", sub.ID).
		Str("callsign", callsign).
		Str("channel", channel).
		Msg("Subscriber attached")
	return sub, nil
}

// Detach removes sub from the fan-out set. The station stays until it is
// pruned by the presence timeout.
func (s *Service) Detach(sub *Subscriber) {
	if s.hub.Remove(sub) {
		s.logger.Info().
			Str("subscriber", sub.ID).
			Str("callsign", sub.Callsign).
			Msg("Subscriber detached")
	}
}

// Heartbeat refreshes the last-seen time of the subscriber's station. It is
// a no-op for anonymous subscribers and unknown call-signs.
func (s *Service) Heartbeat(ctx context.Context, sub *Subscriber) error {
	if sub.Callsign == "" {
		return nil
	}
	metrics.Heartbeats.Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	done := s.observe("touch")
	_, err := s.store.TouchStation(ctx, sub.Callsign, nil, s.now())
	done()
	if err != nil {
		return fmt.Errorf("touch station: %w", err)
	}
	return nil
}

// Close detaches every subscriber.
func (s *Service) Close() {
	s.hub.Close()
}

// publish encodes ev once and queues it for the subscribers of channel.
// Caller holds s.mu so events leave in commit order.
func (s *Service) publish(channel string, ev models.Event) int {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(ev.Kind)).Msg("Failed to encode event")
		return 0
	}
	n := s.hub.Publish(channel, data, nil)
	metrics.PushDelivered.WithLabelValues(string(ev.Kind)).Add(float64(n))
	return n
}

func (s *Service) reject(err *ValidationError) error {
	metrics.ValidationFailures.WithLabelValues(err.Code).Inc()
	return err
}

// observe starts a store latency measurement.
func (s *Service) observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.StoreLatency.WithLabelValues(s.store.Name(), op).Observe(time.Since(start).Seconds())
	}
}
