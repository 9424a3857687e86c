package worldmorse

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/worldmorse/internal/models"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func msgAt(id string, sec int) models.Message {
	return models.Message{
		ID:        id,
		Timestamp: epoch.Add(time.Duration(sec) * time.Second),
		Channel:   "7.050",
		Type:      models.TypeCWMorse,
	}
}

func ids(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestViewMergeDeduplicates(t *testing.T) {
	v := NewView(10)

	added := v.Merge(msgAt("a", 1), msgAt("b", 2))
	assert.Equal(t, []string{"a", "b"}, ids(added))

	// Same ids arriving over the other path are applied once.
	added = v.Merge(msgAt("b", 2), msgAt("a", 1), msgAt("c", 3))
	assert.Equal(t, []string{"c"}, ids(added))
	assert.Equal(t, []string{"a", "b", "c"}, ids(v.Messages()))

	assert.Nil(t, v.Merge(msgAt("c", 3)))
}

func TestViewOrdersByTimestampThenID(t *testing.T) {
	v := NewView(10)
	v.Merge(msgAt("c", 5))
	v.Merge(msgAt("b", 1), msgAt("a", 1))
	v.Merge(msgAt("d", 3))

	assert.Equal(t, []string{"a", "b", "d", "c"}, ids(v.Messages()))
}

func TestViewIgnoresMissingID(t *testing.T) {
	v := NewView(10)
	assert.Empty(t, v.Merge(msgAt("", 1)))
	assert.Equal(t, 0, v.Len())
}

func TestViewCap(t *testing.T) {
	v := NewView(3)
	v.Merge(msgAt("m2", 2), msgAt("m3", 3), msgAt("m4", 4))

	added := v.Merge(msgAt("m5", 5), msgAt("m1", 1))
	// m1 is older than everything kept, so it never surfaces.
	assert.Equal(t, []string{"m5"}, ids(added))
	assert.Equal(t, []string{"m3", "m4", "m5"}, ids(v.Messages()))
}

func TestViewSeenSetIsBounded(t *testing.T) {
	v := NewView(2)
	for i := 0; i < 10; i++ {
		v.Merge(msgAt(fmt.Sprintf("m%02d", i), i))
	}
	assert.Len(t, v.seen, 4)
	assert.Len(t, v.order, 4)
	assert.Equal(t, 2, v.Len())
}

func TestViewMessagesIsACopy(t *testing.T) {
	v := NewView(10)
	v.Merge(msgAt("a", 1))

	msgs := v.Messages()
	msgs[0].ID = "changed"
	assert.Equal(t, "a", v.Messages()[0].ID)
}

func TestViewStations(t *testing.T) {
	v := NewView(10)
	ch := "7.050"

	v.SetStations([]models.Station{{Callsign: "JA1ABC", Channel: &ch}, {Callsign: "JH2XYZ", Channel: &ch}})
	require.Len(t, v.Stations(), 2)

	v.UpsertStation(models.Station{Callsign: "JR3QQQ", Channel: &ch})
	v.UpsertStation(models.Station{Callsign: "JA1ABC", Channel: &ch, LastSeenAt: epoch})
	stations := v.Stations()
	require.Len(t, stations, 3)
	assert.Equal(t, epoch, stations[0].LastSeenAt)

	// A pulled snapshot replaces everything.
	v.SetStations([]models.Station{{Callsign: "JH2XYZ", Channel: &ch}})
	stations = v.Stations()
	require.Len(t, stations, 1)
	assert.Equal(t, "JH2XYZ", stations[0].Callsign)
}
