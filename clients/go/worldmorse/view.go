package worldmorse

import (
	"slices"
	"strings"
	"sync"

	"github.com/eldtechnologies/worldmorse/internal/models"
)

// DefaultViewCap bounds the number of messages a View keeps.
const DefaultViewCap = 1000

// View is the local merged picture of one channel. Messages arrive from both
// the pull and push paths and are applied once per id, ordered by timestamp.
type View struct {
	mu       sync.RWMutex
	cap      int
	messages []models.Message
	seen     map[string]struct{}
	order    []string
	stations []models.Station
}

// NewView creates a view holding at most size messages.
func NewView(size int) *View {
	if size <= 0 {
		size = DefaultViewCap
	}
	return &View{
		cap:  size,
		seen: make(map[string]struct{}),
	}
}

func compareMessages(a, b models.Message) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Merge applies msgs and returns the ones not seen before, in view order.
// Messages without an id are ignored.
func (v *View) Merge(msgs ...models.Message) []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()

	var added []models.Message
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if _, ok := v.seen[m.ID]; ok {
			continue
		}
		v.remember(m.ID)
		added = append(added, m)
	}
	if len(added) == 0 {
		return nil
	}

	v.messages = append(v.messages, added...)
	slices.SortStableFunc(v.messages, compareMessages)
	if over := len(v.messages) - v.cap; over > 0 {
		v.messages = slices.Delete(v.messages, 0, over)
	}

	slices.SortStableFunc(added, compareMessages)
	oldest := v.messages[0]
	added = slices.DeleteFunc(added, func(m models.Message) bool {
		return compareMessages(m, oldest) < 0
	})
	return added
}

// remember records id, forgetting the oldest ids beyond twice the cap.
// Caller holds v.mu.
func (v *View) remember(id string) {
	v.seen[id] = struct{}{}
	v.order = append(v.order, id)
	if limit := 2 * v.cap; len(v.order) > limit {
		drop := len(v.order) - limit
		for _, old := range v.order[:drop] {
			delete(v.seen, old)
		}
		v.order = slices.Clone(v.order[drop:])
	}
}

// Messages returns a copy of the view, oldest first.
func (v *View) Messages() []models.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.messages)
}

// Len returns the number of messages held.
func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.messages)
}

// SetStations replaces the station list with a pulled snapshot.
func (v *View) SetStations(stations []models.Station) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stations = slices.Clone(stations)
}

// UpsertStation adds or refreshes a single station announced over push. The
// next pulled snapshot replaces it.
func (v *View) UpsertStation(st models.Station) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.stations {
		if v.stations[i].Callsign == st.Callsign {
			v.stations[i] = st
			return
		}
	}
	v.stations = append(v.stations, st)
}

// Stations returns a copy of the station list.
func (v *View) Stations() []models.Station {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.stations)
}
