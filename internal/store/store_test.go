package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/worldmorse/internal/models"
)

// backends returns every DataStore reachable from this test run. Redis and
// Postgres join only when REDIS_URL / DATABASE_URL are set.
func backends(t *testing.T, channelCap int) map[string]func(t *testing.T) DataStore {
	t.Helper()
	out := map[string]func(t *testing.T) DataStore{
		"memory": func(t *testing.T) DataStore {
			return NewMemoryStore(channelCap)
		},
		"sqlite": func(t *testing.T) DataStore {
			s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "wm.db"), channelCap)
			require.NoError(t, err)
			t.Cleanup(s.Close)
			return s
		},
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		out["redis"] = func(t *testing.T) DataStore {
			s, err := NewRedisStore(context.Background(), url, channelCap)
			require.NoError(t, err)
			t.Cleanup(s.Close)
			return s
		}
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		out["postgres"] = func(t *testing.T) DataStore {
			s, err := NewPostgresStore(context.Background(), url, channelCap)
			require.NoError(t, err)
			t.Cleanup(s.Close)
			return s
		}
	}
	return out
}

// unique keeps shared external backends from seeing each other's rows.
func unique(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

func at(sec int) time.Time {
	return time.Date(2024, 5, 1, 12, 0, sec, 0, time.UTC)
}

func TestStations(t *testing.T) {
	for name, open := range backends(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			ch := unique("7.050")
			k1, w2 := unique("K1ABC"), unique("W2XYZ")

			st, err := s.RegisterStation(ctx, k1, at(0))
			require.NoError(t, err)
			assert.Equal(t, k1, st.Callsign)
			assert.Nil(t, st.Channel)
			assert.True(t, st.LastSeenAt.Equal(at(0)))

			st, err = s.JoinStation(ctx, k1, ch, at(5))
			require.NoError(t, err)
			require.NotNil(t, st.Channel)
			assert.Equal(t, ch, *st.Channel)

			// Re-registering keeps the channel
			st, err = s.RegisterStation(ctx, k1, at(10))
			require.NoError(t, err)
			require.NotNil(t, st.Channel)
			assert.Equal(t, ch, *st.Channel)
			assert.True(t, st.LastSeenAt.Equal(at(10)))

			// Joining with no channel only refreshes
			st, err = s.JoinStation(ctx, k1, "", at(11))
			require.NoError(t, err)
			require.NotNil(t, st.Channel)
			assert.Equal(t, ch, *st.Channel)

			_, err = s.JoinStation(ctx, w2, ch, at(12))
			require.NoError(t, err)

			list, _, err := s.ListStations(ctx, ch, at(0))
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, k1, list[0].Callsign)
			assert.Equal(t, w2, list[1].Callsign)

			other, _, err := s.ListStations(ctx, unique("14.070"), at(0))
			require.NoError(t, err)
			assert.Empty(t, other)
		})
	}
}

func TestTouchStation(t *testing.T) {
	for name, open := range backends(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			call := unique("N0CALL")

			ok, err := s.TouchStation(ctx, call, nil, at(1))
			require.NoError(t, err)
			assert.False(t, ok, "unknown stations are not created by touch")

			_, err = s.RegisterStation(ctx, call, at(1))
			require.NoError(t, err)

			ch := unique("3.560")
			ok, err = s.TouchStation(ctx, call, &ch, at(30))
			require.NoError(t, err)
			assert.True(t, ok)

			list, _, err := s.ListStations(ctx, ch, at(20))
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.True(t, list[0].LastSeenAt.Equal(at(30)))

			ok, err = s.TouchStation(ctx, call, nil, at(40))
			require.NoError(t, err)
			assert.True(t, ok)
			list, _, err = s.ListStations(ctx, ch, at(35))
			require.NoError(t, err)
			require.Len(t, list, 1, "touch without channel keeps the channel")
		})
	}
}

func TestListStationsPrunesGlobally(t *testing.T) {
	for name, open := range backends(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			a, b := unique("7.050"), unique("7.030")
			stale, fresh := unique("OLD"), unique("NEW")

			_, err := s.JoinStation(ctx, stale, b, at(0))
			require.NoError(t, err)
			_, err = s.JoinStation(ctx, fresh, a, at(50))
			require.NoError(t, err)

			// Listing channel a removes the stale station tuned to b
			list, pruned, err := s.ListStations(ctx, a, at(30))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, pruned, 1)
			require.Len(t, list, 1)
			assert.Equal(t, fresh, list[0].Callsign)

			ok, err := s.TouchStation(ctx, stale, nil, at(60))
			require.NoError(t, err)
			assert.False(t, ok, "pruned station is gone")
		})
	}
}

func msg(channel string, n int) *models.Message {
	return &models.Message{
		ID:           unique(fmt.Sprintf("m%03d", n)),
		Timestamp:    at(n),
		Channel:      channel,
		FromCallsign: "K1ABC",
		Type:         models.TypeCWMorse,
		Payload:      models.Payload{"morse": "-.-. --.-", "textPreview": "CQ"},
	}
}

func TestMessageLog(t *testing.T) {
	for name, open := range backends(t, 5) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			ch, other := unique("7.050"), unique("7.030")

			empty, err := s.RecentMessages(ctx, ch, 10)
			require.NoError(t, err)
			assert.Empty(t, empty)

			var ids []string
			for i := 0; i < 8; i++ {
				m := msg(ch, i)
				ids = append(ids, m.ID)
				require.NoError(t, s.AppendMessage(ctx, m))
			}
			require.NoError(t, s.AppendMessage(ctx, msg(other, 99)))

			all, err := s.RecentMessages(ctx, ch, 100)
			require.NoError(t, err)
			require.Len(t, all, 5, "history is capped")
			for i, m := range all {
				assert.Equal(t, ids[3+i], m.ID, "arrival order, oldest evicted")
				assert.Equal(t, ch, m.Channel)
			}

			tail, err := s.RecentMessages(ctx, ch, 2)
			require.NoError(t, err)
			require.Len(t, tail, 2)
			assert.Equal(t, ids[6], tail[0].ID)
			assert.Equal(t, ids[7], tail[1].ID)

			got := tail[1]
			assert.True(t, got.Timestamp.Equal(at(7)))
			assert.Equal(t, models.TypeCWMorse, got.Type)
			assert.Nil(t, got.ToCallsign)
			assert.Equal(t, "-.-. --.-", got.Payload.Morse())
			assert.Equal(t, "CQ", got.Payload.TextPreview())
		})
	}
}

func TestMessageToCallsign(t *testing.T) {
	for name, open := range backends(t, 5) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			ch := unique("14.070")
			to := "W2XYZ"

			m := msg(ch, 1)
			m.ToCallsign = &to
			require.NoError(t, s.AppendMessage(ctx, m))

			got, err := s.RecentMessages(ctx, ch, 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			require.NotNil(t, got[0].ToCallsign)
			assert.Equal(t, to, *got[0].ToCallsign)
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	st, err := s.JoinStation(ctx, "K1ABC", "7.050", at(0))
	require.NoError(t, err)
	*st.Channel = "mutated"

	list, _, err := s.ListStations(ctx, "7.050", at(0))
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.AppendMessage(ctx, msg("7.050", 1)))
	got, err := s.RecentMessages(ctx, "7.050", 0)
	require.NoError(t, err)
	got[0].ID = "mutated"
	again, err := s.RecentMessages(ctx, "7.050", 0)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again[0].ID)
}

func TestSQLiteStoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "wm.db")
	s, err := NewSQLiteStore(context.Background(), path, 0)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "sqlite", s.Name())
	assert.NoError(t, s.Ping(context.Background()))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestRedisMessageLogDoesNotExpire(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, url, 10)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	ch := unique("7.050")
	require.NoError(t, s.AppendMessage(ctx, &models.Message{
		ID: unique("m"), Timestamp: at(0), Channel: ch, FromCallsign: "K1ABC", Type: "CW_MORSE",
	}))

	for _, key := range []string{channelMessagesKey(ch), channelSeqKey(ch)} {
		ttl, err := s.Client().TTL(ctx, key).Result()
		require.NoError(t, err)
		assert.Equal(t, time.Duration(-1), ttl, "%s has a TTL", key)
	}
}
