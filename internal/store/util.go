package store

import (
	"sort"

	"github.com/eldtechnologies/worldmorse/internal/models"
)

// sortStations orders a station list by call-sign so results are stable
// across backends.
func sortStations(list []models.Station) {
	sort.Slice(list, func(i, j int) bool { return list[i].Callsign < list[j].Callsign })
}
