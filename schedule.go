package telemetry

import (
	"sort"
	"strings"

	"pakrail.dev/telemetry/model"
)

// ScheduleIndex wraps a set of published routes with lookup by train
// number and precomputed cumulative distances.
type ScheduleIndex struct {
	entries  []*model.ScheduleEntry
	byNumber map[string]*model.ScheduleEntry

	// Cumulative distance from origin per stop, keyed by train
	// number. Filled from the published DistanceKm where present,
	// derived from coordinates where not.
	distances map[string][]float64
}

// NewScheduleIndex builds an index over the given routes. Entries
// with duplicate train numbers keep the first occurrence.
func NewScheduleIndex(entries []model.ScheduleEntry) *ScheduleIndex {
	idx := &ScheduleIndex{
		byNumber:  map[string]*model.ScheduleEntry{},
		distances: map[string][]float64{},
	}
	for i := range entries {
		e := &entries[i]
		idx.entries = append(idx.entries, e)
		key := strings.ToUpper(strings.TrimSpace(e.TrainNumber))
		if _, seen := idx.byNumber[key]; !seen && key != "" {
			idx.byNumber[key] = e
			idx.distances[key] = cumulativeDistances(e)
		}
	}
	sort.Slice(idx.entries, func(i, j int) bool {
		return idx.entries[i].TrainNumber < idx.entries[j].TrainNumber
	})
	return idx
}

// Empty reports whether the index holds no routes at all. The filter
// pipeline uses this to distinguish "schedule not loaded yet" from
// "train has no route".
func (idx *ScheduleIndex) Empty() bool {
	return idx == nil || len(idx.entries) == 0
}

// Entries returns all indexed routes, ordered by train number.
func (idx *ScheduleIndex) Entries() []*model.ScheduleEntry {
	if idx == nil {
		return nil
	}
	return idx.entries
}

// FindRoute returns the published route for a train number, or nil.
func (idx *ScheduleIndex) FindRoute(trainNumber string) *model.ScheduleEntry {
	if idx == nil {
		return nil
	}
	return idx.byNumber[strings.ToUpper(strings.TrimSpace(trainNumber))]
}

// StopDistancesKm returns cumulative distances from origin for every
// stop of the route, or nil if the route is unknown.
func (idx *ScheduleIndex) StopDistancesKm(route *model.ScheduleEntry) []float64 {
	if idx == nil || route == nil {
		return nil
	}
	key := strings.ToUpper(strings.TrimSpace(route.TrainNumber))
	if d, ok := idx.distances[key]; ok {
		return d
	}
	// Route not indexed (e.g. built ad hoc in tests). Derive on
	// the fly.
	return cumulativeDistances(route)
}

// TotalDistanceKm returns the route's full length, or 0 when no
// distance data exists.
func (idx *ScheduleIndex) TotalDistanceKm(route *model.ScheduleEntry) float64 {
	d := idx.StopDistancesKm(route)
	if len(d) == 0 {
		return 0
	}
	return d[len(d)-1]
}

// StationNamesMatch is the fuzzy station-name predicate: names match
// case-insensitively when either contains the other. This handles
// suffix variants ("Lahore Junction" vs "Lahore") at the cost of
// occasional false positives; the schedule data carries no stable
// station IDs, so a sharper rule is not available.
func StationNamesMatch(a, b string) bool {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// FindStop locates the first stop of the route whose name fuzzily
// matches the query. Returns the stop's index, or -1 when nothing
// matches. Routes are assumed non-repeating, so first match in route
// order wins.
func FindStop(route *model.ScheduleEntry, stationName string) int {
	if route == nil {
		return -1
	}
	for i := range route.Stations {
		if StationNamesMatch(route.Stations[i].StationName, stationName) {
			return i
		}
	}
	return -1
}

// cumulativeDistances resolves a cumulative distance for every stop.
// The published DistanceKm wins where present; gaps are filled by
// summing great-circle distances between consecutive stops with
// coordinates, carrying the last known value forward when neither
// source has data.
func cumulativeDistances(route *model.ScheduleEntry) []float64 {
	dists := make([]float64, len(route.Stations))
	last := 0.0
	for i := range route.Stations {
		stop := &route.Stations[i]
		switch {
		case stop.DistanceKm > 0 || i == 0:
			last = stop.DistanceKm
		case stop.HasPosition() && route.Stations[i-1].HasPosition():
			last += HaversineKm(
				route.Stations[i-1].Latitude, route.Stations[i-1].Longitude,
				stop.Latitude, stop.Longitude,
			)
		}
		dists[i] = last
	}
	return dists
}
