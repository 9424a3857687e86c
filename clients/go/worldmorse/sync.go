package worldmorse

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eldtechnologies/worldmorse/internal/models"
	"github.com/eldtechnologies/worldmorse/internal/morse"
)

// ErrNoCallsign is returned when transmitting without a call-sign.
var ErrNoCallsign = errors.New("worldmorse: callsign required to transmit")

// Sync defaults.
const (
	DefaultPollInterval      = 3 * time.Second
	DefaultRecentLimit       = 200
	DefaultPingInterval      = 20 * time.Second
	DefaultReconnectInterval = 5 * time.Second
)

// ChannelForFrequency renders a frequency in MHz as a channel name with three
// decimals, so 7.05 and 7.050 share a channel.
func ChannelForFrequency(mhz float64) string {
	return strconv.FormatFloat(mhz, 'f', 3, 64)
}

// Status is the connectivity of both delivery paths.
type Status struct {
	Push     bool
	Pull     bool
	LastPoll time.Time
}

// SyncOptions configures a Syncer. Zero values take the defaults.
type SyncOptions struct {
	PollInterval      time.Duration
	RecentLimit       int
	PingInterval      time.Duration
	ReconnectInterval time.Duration
	ViewCap           int
	Dialer            *websocket.Dialer
	Logger            *zerolog.Logger

	// Callbacks run on the syncer's goroutines and must not block.
	OnMessage  func(models.Message)
	OnStations func([]models.Station)
	OnStatus   func(Status)
}

// Syncer keeps a View of one channel current. It polls the relay on a fixed
// interval and, when a call-sign is set, holds a push subscription at the same
// time. Either path alone keeps the view usable.
type Syncer struct {
	client   *Client
	callsign string
	channel  string
	opts     SyncOptions
	view     *View
	logger   zerolog.Logger

	mu     sync.Mutex
	status Status
}

// NewSyncer creates a syncer for callsign on channel. An empty callsign
// gives a listen-only syncer that never registers or subscribes.
func NewSyncer(client *Client, callsign, channel string, opts SyncOptions) *Syncer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = DefaultRecentLimit
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	callsign = models.NormalizeCallsign(callsign)
	return &Syncer{
		client:   client,
		callsign: callsign,
		channel:  strings.TrimSpace(channel),
		opts:     opts,
		view:     NewView(opts.ViewCap),
		logger: logger.With().
			Str("component", "sync").
			Str("callsign", callsign).
			Str("channel", channel).
			Logger(),
	}
}

// View returns the merged local view.
func (s *Syncer) View() *View { return s.view }

// Callsign returns the normalized call-sign, possibly empty.
func (s *Syncer) Callsign() string { return s.callsign }

// Channel returns the channel being followed.
func (s *Syncer) Channel() string { return s.channel }

// Status returns the current connectivity.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Syncer) setStatus(update func(*Status)) {
	s.mu.Lock()
	prev := s.status
	update(&s.status)
	cur := s.status
	s.mu.Unlock()

	if cur.Push != prev.Push || cur.Pull != prev.Pull {
		s.logger.Debug().Bool("push", cur.Push).Bool("pull", cur.Pull).Msg("connectivity changed")
	}
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(cur)
	}
}

// Run registers the station, then polls and holds the push subscription
// until ctx is done. Transport failures are absorbed into Status and retried
// on the next cycle; Run returns nil once ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	if s.callsign != "" {
		if _, err := s.client.Register(ctx, s.callsign); err != nil {
			s.logger.Warn().Err(err).Msg("register failed")
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pullLoop(ctx)
	}()
	if s.callsign != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.pushLoop(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (s *Syncer) pullLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.Poll(ctx); err != nil && ctx.Err() == nil {
			s.logger.Debug().Err(err).Msg("poll failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll fetches recent messages and online stations once. The station list
// replaces the local one; messages are merged.
func (s *Syncer) Poll(ctx context.Context) error {
	var (
		msgs     []models.Message
		stations []models.Station
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		msgs, err = s.client.RecentMessages(gctx, s.channel, s.opts.RecentLimit)
		return err
	})
	g.Go(func() error {
		var err error
		stations, err = s.client.OnlineStations(gctx, s.channel)
		return err
	})
	if err := g.Wait(); err != nil {
		s.setStatus(func(st *Status) { st.Pull = false })
		return err
	}

	s.apply(msgs...)
	s.view.SetStations(stations)
	if s.opts.OnStations != nil {
		s.opts.OnStations(s.view.Stations())
	}
	s.setStatus(func(st *Status) {
		st.Pull = true
		st.LastPoll = time.Now()
	})
	return nil
}

func (s *Syncer) pushLoop(ctx context.Context) {
	for {
		if err := s.subscribeOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Debug().Err(err).Msg("push connection lost")
		}
		s.setStatus(func(st *Status) { st.Push = false })

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.ReconnectInterval):
		}
	}
}

func (s *Syncer) subscribeOnce(ctx context.Context) error {
	wsURL, err := s.client.WebSocketURL(s.callsign, s.channel)
	if err != nil {
		return err
	}
	timeout := s.client.HTTPClient.Timeout
	if timeout <= 0 {
		timeout = DefaultReconnectInterval
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	sub, err := Subscribe(dialCtx, s.opts.Dialer, wsURL)
	cancel()
	if err != nil {
		return err
	}
	return sub.Run(ctx, s.opts.PingInterval, s.handleEvent)
}

func (s *Syncer) handleEvent(ev *models.Event) {
	switch ev.Kind {
	case models.KindHello:
		s.setStatus(func(st *Status) { st.Push = true })
	case models.KindMessage:
		if ev.Message != nil && ev.Message.Channel == s.channel {
			s.apply(*ev.Message)
		}
	case models.KindStation:
		if ev.Station != nil && ev.Station.OnChannel(s.channel) {
			s.view.UpsertStation(*ev.Station)
			if s.opts.OnStations != nil {
				s.opts.OnStations(s.view.Stations())
			}
		}
	}
}

func (s *Syncer) apply(msgs ...models.Message) {
	added := s.view.Merge(msgs...)
	if s.opts.OnMessage == nil {
		return
	}
	for _, m := range added {
		s.opts.OnMessage(m)
	}
}

// TransmitText encodes text as Morse and submits it as a CW message. to
// addresses a single station and may be empty.
func (s *Syncer) TransmitText(ctx context.Context, text, to string) (*models.Message, error) {
	text = strings.ToUpper(strings.TrimSpace(text))
	return s.TransmitUtterance(ctx, text, morse.Encode(text), to)
}

// TransmitUtterance submits a keyed utterance as a CW message and merges the
// relay's copy into the view.
func (s *Syncer) TransmitUtterance(ctx context.Context, text, code, to string) (*models.Message, error) {
	if s.callsign == "" {
		return nil, ErrNoCallsign
	}
	payload := models.Payload{"morse": strings.TrimSpace(code)}
	if text = strings.TrimSpace(text); text != "" {
		payload["textPreview"] = text
	}
	sub := Submission{
		FromCallsign: s.callsign,
		Channel:      s.channel,
		Type:         models.TypeCWMorse,
		Payload:      payload,
	}
	if to = strings.TrimSpace(to); to != "" {
		sub.ToCallsign = &to
	}

	msg, err := s.client.SubmitMessage(ctx, sub)
	if err != nil {
		return nil, err
	}
	if msg != nil {
		s.apply(*msg)
	}
	return msg, nil
}
