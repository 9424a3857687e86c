package relay

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/worldmorse/internal/metrics"
)

// DefaultSubscriberBuffer is the number of events queued per subscriber
// before it is considered too slow and dropped.
const DefaultSubscriberBuffer = 64

// Subscriber is one push connection attached to a channel.
type Subscriber struct {
	ID       string
	Callsign string
	Channel  string

	send      chan []byte
	closeOnce sync.Once
}

// Send returns the queue of encoded events for this subscriber. It is closed
// when the subscriber leaves the hub, for whatever reason.
func (s *Subscriber) Send() <-chan []byte {
	return s.send
}

// enqueue queues data without blocking. It reports false when the buffer is
// full.
func (s *Subscriber) enqueue(data []byte) bool {
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.send) })
}

// Hub keeps channel-keyed subscriber sets and fans encoded events out to them.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Subscriber]struct{}
	buffer   int
	logger   zerolog.Logger
}

// NewHub creates a hub whose subscribers queue up to buffer events.
func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		channels: make(map[string]map[*Subscriber]struct{}),
		buffer:   buffer,
		logger:   logger.With().Str("component", "hub").Logger(),
	}
}

// NewSubscriber creates a subscriber that is not yet attached to any channel.
func (h *Hub) NewSubscriber(callsign, channel string) *Subscriber {
	return &Subscriber{
		ID:       uuid.NewString(),
		Callsign: callsign,
		Channel:  channel,
		send:     make(chan []byte, h.buffer),
	}
}

// Add attaches sub to its channel. Subscribers without a channel are never
// added; they only receive what was queued on them directly.
func (h *Hub) Add(sub *Subscriber) {
	if sub.Channel == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.channels[sub.Channel]
	if set == nil {
		set = make(map[*Subscriber]struct{})
		h.channels[sub.Channel] = set
	}
	set[sub] = struct{}{}
	metrics.PushSubscribers.Inc()
}

// Remove detaches sub and closes its queue. It reports whether sub was
// attached.
func (h *Hub) Remove(sub *Subscriber) bool {
	h.mu.Lock()
	removed := h.removeLocked(sub)
	h.mu.Unlock()
	sub.close()
	return removed
}

func (h *Hub) removeLocked(sub *Subscriber) bool {
	set, ok := h.channels[sub.Channel]
	if !ok {
		return false
	}
	if _, ok := set[sub]; !ok {
		return false
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.channels, sub.Channel)
	}
	metrics.PushSubscribers.Dec()
	return true
}

// Publish queues data for every subscriber of channel except skip, which may
// be nil. It never blocks: a subscriber whose queue is full is removed from
// the hub. It returns how many subscribers received the event.
func (h *Hub) Publish(channel string, data []byte, skip *Subscriber) int {
	var slow []*Subscriber
	delivered := 0

	h.mu.RLock()
	for sub := range h.channels[channel] {
		if sub == skip {
			continue
		}
		if sub.enqueue(data) {
			delivered++
			continue
		}
		slow = append(slow, sub)
	}
	h.mu.RUnlock()

	if len(slow) > 0 {
		h.mu.Lock()
		for _, sub := range slow {
			if h.removeLocked(sub) {
				sub.close()
				metrics.PushDropped.Inc()
				h.logger.Warn().
					Str("subscriber", sub.ID).
					Str("callsign", sub.Callsign).
					Str("channel", channel).
					Msg("Dropping slow subscriber")
			}
		}
		h.mu.Unlock()
	}

	return delivered
}

// Count returns the number of subscribers on channel.
func (h *Hub) Count(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Close detaches every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel, set := range h.channels {
		for sub := range set {
			sub.close()
			metrics.PushSubscribers.Dec()
		}
		delete(h.channels, channel)
	}
}
