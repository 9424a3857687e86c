package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/worldmorse/internal/models"
	"github.com/eldtechnologies/worldmorse/internal/store"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(store.NewMemoryStore(100), zerolog.Nop(), Options{
		PresenceTimeout:  60 * time.Second,
		SubscriberBuffer: 16,
		Now:              clock.Now,
	})
	t.Cleanup(svc.Close)
	return svc, clock
}

// events drains whatever is queued on sub.
func events(t *testing.T, sub *Subscriber) []models.Event {
	t.Helper()
	var out []models.Event
	for {
		select {
		case data, ok := <-sub.Send():
			if !ok {
				return out
			}
			ev, err := models.ParseEvent(data)
			require.NoError(t, err)
			out = append(out, *ev)
		default:
			return out
		}
	}
}

func cw(from, channel, text string) Submission {
	return Submission{
		FromCallsign: from,
		Channel:      channel,
		Type:         models.TypeCWMorse,
		Payload:      models.Payload{"morse": "-.-. --.-", "textPreview": text},
	}
}

func TestRegisterStation(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterStation(ctx, "   ")
	assert.ErrorIs(t, err, ErrCallsignRequired)

	first, err := svc.RegisterStation(ctx, " k1abc ")
	require.NoError(t, err)
	assert.Equal(t, "K1ABC", first.Callsign)
	assert.Nil(t, first.Channel)

	clock.Advance(5 * time.Second)
	second, err := svc.RegisterStation(ctx, "K1ABC")
	require.NoError(t, err)
	assert.True(t, second.LastSeenAt.After(first.LastSeenAt), "second registration wins")
}

func TestRegisterTwiceLeavesOneStation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Attach(ctx, "K1ABC", "7.050")
	require.NoError(t, err)
	defer svc.Detach(sub)

	_, err = svc.RegisterStation(ctx, "k1abc")
	require.NoError(t, err)
	_, err = svc.RegisterStation(ctx, "K1ABC")
	require.NoError(t, err)

	stations, err := svc.OnlineStations(ctx, "7.050")
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, "K1ABC", stations[0].Callsign)
}

func TestSubmitMessageValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	listener, err := svc.Attach(ctx, "W2XYZ", "7.050")
	require.NoError(t, err)
	events(t, listener)

	cases := []struct {
		name string
		sub  Submission
		want error
	}{
		{"missing from", Submission{Channel: "7.050", Type: "CW_MORSE"}, ErrFromCallsignRequired},
		{"blank from", Submission{FromCallsign: "  ", Channel: "7.050", Type: "CW_MORSE"}, ErrFromCallsignRequired},
		{"missing channel", Submission{FromCallsign: "K1ABC", Type: "CW_MORSE"}, ErrChannelRequired},
		{"missing type", Submission{FromCallsign: "K1ABC", Channel: "7.050"}, ErrTypeRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := svc.SubmitMessage(ctx, tc.sub)
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, tc.want)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.want.Error(), verr.Code)
		})
	}

	recent, err := svc.RecentMessages(ctx, "7.050", 10)
	require.NoError(t, err)
	assert.Empty(t, recent, "rejected submissions are not logged")
	assert.Empty(t, events(t, listener), "rejected submissions are not pushed")
}

func TestSubmitMessage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	to := " w2xyz "
	sub := cw(" k1abc", "7.050", "CQ")
	sub.ToCallsign = &to
	msg, err := svc.SubmitMessage(ctx, sub)
	require.NoError(t, err)

	assert.Len(t, msg.ID, 26)
	assert.Equal(t, "K1ABC", msg.FromCallsign)
	require.NotNil(t, msg.ToCallsign)
	assert.Equal(t, "W2XYZ", *msg.ToCallsign)
	assert.Equal(t, "7.050", msg.Channel)
	assert.Equal(t, "CQ", msg.Payload.TextPreview())

	blank := "  "
	sub = cw("K1ABC", "7.050", "DE")
	sub.ToCallsign = &blank
	sub.Payload = nil
	msg2, err := svc.SubmitMessage(ctx, sub)
	require.NoError(t, err)
	assert.Nil(t, msg2.ToCallsign)
	assert.NotNil(t, msg2.Payload)
	assert.NotEqual(t, msg.ID, msg2.ID)
	assert.Less(t, msg.ID, msg2.ID, "ids sort in submission order")
}

func TestRecentMessagesWindow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var ids []string
	for _, text := range []string{"M1", "M2", "M3"} {
		msg, err := svc.SubmitMessage(ctx, cw("K1ABC", "7.050", text))
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}
	_, err := svc.SubmitMessage(ctx, cw("K1ABC", "14.070", "OTHER"))
	require.NoError(t, err)

	recent, err := svc.RecentMessages(ctx, "7.050", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[1], recent[0].ID)
	assert.Equal(t, ids[2], recent[1].ID)

	all, err := svc.RecentMessages(ctx, "7.050", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.RecentMessages(ctx, "", 10)
	assert.ErrorIs(t, err, ErrChannelRequired)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 100, ClampLimit(0))
	assert.Equal(t, 1, ClampLimit(-7))
	assert.Equal(t, 1, ClampLimit(1))
	assert.Equal(t, 250, ClampLimit(250))
	assert.Equal(t, 500, ClampLimit(500))
	assert.Equal(t, 500, ClampLimit(10000))
}

func TestOnlineStationsPrunesStale(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	old, err := svc.Attach(ctx, "OLD", "7.030")
	require.NoError(t, err)
	defer svc.Detach(old)

	clock.Advance(45 * time.Second)
	fresh, err := svc.Attach(ctx, "NEW", "7.050")
	require.NoError(t, err)
	defer svc.Detach(fresh)

	clock.Advance(20 * time.Second)

	// A query for 7.050 prunes OLD from 7.030 too
	stations, err := svc.OnlineStations(ctx, "7.050")
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, "NEW", stations[0].Callsign)

	stations, err = svc.OnlineStations(ctx, "7.030")
	require.NoError(t, err)
	assert.Empty(t, stations)

	_, err = svc.OnlineStations(ctx, " ")
	assert.ErrorIs(t, err, ErrChannelRequired)
}

func TestAttachAnnouncesJoinAfterHello(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Attach(ctx, "K1ABC", "7.050")
	require.NoError(t, err)
	defer svc.Detach(first)

	evs := events(t, first)
	require.Len(t, evs, 1)
	assert.Equal(t, models.KindHello, evs[0].Kind)
	assert.True(t, evs[0].OK)
	assert.False(t, evs[0].TS.IsZero())

	second, err := svc.Attach(ctx, "w2xyz", "7.050")
	require.NoError(t, err)
	defer svc.Detach(second)

	evs = events(t, first)
	require.Len(t, evs, 1)
	assert.Equal(t, models.KindStation, evs[0].Kind)
	assert.Equal(t, models.ActionJoin, evs[0].Action)
	require.NotNil(t, evs[0].Station)
	assert.Equal(t, "W2XYZ", evs[0].Station.Callsign)

	evs = events(t, second)
	require.Len(t, evs, 1, "a subscriber does not see its own join")
	assert.Equal(t, models.KindHello, evs[0].Kind)
}

func TestAnonymousAttachDoesNotCreateStation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	watcher, err := svc.Attach(ctx, "K1ABC", "7.050")
	require.NoError(t, err)
	defer svc.Detach(watcher)
	events(t, watcher)

	anon, err := svc.Attach(ctx, "", "7.050")
	require.NoError(t, err)
	defer svc.Detach(anon)

	assert.Empty(t, events(t, watcher), "no join for anonymous listeners")
	stations, err := svc.OnlineStations(ctx, "7.050")
	require.NoError(t, err)
	assert.Len(t, stations, 1)

	_, err = svc.SubmitMessage(ctx, cw("K1ABC", "7.050", "CQ"))
	require.NoError(t, err)
	evs := events(t, anon)
	require.Len(t, evs, 2)
	assert.Equal(t, models.KindMessage, evs[1].Kind)
}

func TestSubmitFansOutToChannel(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	on, err := svc.Attach(ctx, "K1ABC", "7.050")
	require.NoError(t, err)
	defer svc.Detach(on)
	off, err := svc.Attach(ctx, "W2XYZ", "14.070")
	require.NoError(t, err)
	defer svc.Detach(off)
	events(t, on)
	events(t, off)

	msg, err := svc.SubmitMessage(ctx, cw("JA1AA", "7.050", "CQ"))
	require.NoError(t, err)

	evs := events(t, on)
	require.Len(t, evs, 1)
	assert.Equal(t, models.KindMessage, evs[0].Kind)
	require.NotNil(t, evs[0].Message)
	assert.Equal(t, msg.ID, evs[0].Message.ID)
	assert.Empty(t, events(t, off))
}

func TestDetachKeepsPresence(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Attach(ctx, "K1ABC", "7.050")
	require.NoError(t, err)
	svc.Detach(sub)
	assert.Equal(t, 0, svc.Hub().Count("7.050"))

	stations, err := svc.OnlineStations(ctx, "7.050")
	require.NoError(t, err)
	require.Len(t, stations, 1, "station survives detach until pruned")

	// Reattach within the timeout refreshes the same station
	clock.Advance(10 * time.Second)
	sub, err = svc.Attach(ctx, "K1ABC", "7.050")
	require.NoError(t, err)
	defer svc.Detach(sub)

	stations, err = svc.OnlineStations(ctx, "7.050")
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.True(t, stations[0].LastSeenAt.Equal(clock.Now()))
}

func TestHeartbeat(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Attach(ctx, "K1ABC", "7.050")
	require.NoError(t, err)
	defer svc.Detach(sub)

	clock.Advance(50 * time.Second)
	require.NoError(t, svc.Heartbeat(ctx, sub))
	clock.Advance(50 * time.Second)

	stations, err := svc.OnlineStations(ctx, "7.050")
	require.NoError(t, err)
	require.Len(t, stations, 1, "heartbeat kept the station alive")
	require.NotNil(t, stations[0].Channel)
	assert.Equal(t, "7.050", *stations[0].Channel)

	anon, err := svc.Attach(ctx, "", "7.050")
	require.NoError(t, err)
	defer svc.Detach(anon)
	assert.NoError(t, svc.Heartbeat(ctx, anon))

	// A heartbeat for a pruned station is ignored
	clock.Advance(2 * time.Minute)
	_, err = svc.OnlineStations(ctx, "7.050")
	require.NoError(t, err)
	require.NoError(t, svc.Heartbeat(ctx, sub))
	stations, err = svc.OnlineStations(ctx, "7.050")
	require.NoError(t, err)
	assert.Empty(t, stations)
}

func TestEventWireFormat(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Attach(ctx, "K1ABC", "7.050")
	require.NoError(t, err)
	defer svc.Detach(sub)

	hello := <-sub.Send()
	var raw map[string]any
	require.NoError(t, json.Unmarshal(hello, &raw))
	assert.Equal(t, "hello", raw["kind"])
	assert.Equal(t, true, raw["ok"])
	assert.Contains(t, raw, "ts")
	assert.NotContains(t, raw, "message")

	_, err = svc.SubmitMessage(ctx, cw("W2XYZ", "7.050", "CQ"))
	require.NoError(t, err)
	data := <-sub.Send()
	raw = nil
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "message", raw["kind"])
	msg := raw["message"].(map[string]any)
	assert.Equal(t, "W2XYZ", msg["fromCallsign"])
	assert.Contains(t, msg, "toCallsign")
	assert.Nil(t, msg["toCallsign"])
	assert.NotContains(t, raw, "ts", "only hello carries ts")
}
