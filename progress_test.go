package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pakrail.dev/telemetry/model"
)

// bentRoute doubles back on itself: the published distances are well
// above the straight line between the endpoints.
func bentRoute() model.ScheduleEntry {
	return model.ScheduleEntry{
		TrainNumber: "205",
		Stations: []model.StationStop{
			{StationName: "Kundian", DepartureTime: "10:00", DistanceKm: 0, Latitude: 31.00, Longitude: 70.00},
			{StationName: "Bhakkar", ArrivalTime: "12:00", DistanceKm: 111, Latitude: 30.00, Longitude: 71.00},
			{StationName: "Layyah", ArrivalTime: "13:00", DistanceKm: 167, Latitude: 31.00, Longitude: 72.00},
		},
	}
}

func TestProgressAdvancesAlongBentRoute(t *testing.T) {
	e := NewProgressEstimator(nil, clockAt(t, "2026-03-05 12:15"))
	sched := NewScheduleIndex([]model.ScheduleEntry{bentRoute()})
	route := sched.FindRoute("205")

	// A quarter and then three quarters of the way into the last
	// segment. The published cumulative distance of the previous
	// stop floors the estimate; the GPS ratio refines within the
	// segment.
	quarter := &model.TrainSnapshot{
		TrainNumber: "205",
		NextStation: "Layyah",
		Latitude:    30.25,
		Longitude:   71.25,
	}
	pct1, km1, ok := e.Estimate(quarter, sched, route)
	require.True(t, ok)
	assert.InDelta(t, 74.9, pct1, 0.5)
	assert.InDelta(t, 125, km1, 1)

	threeQuarters := &model.TrainSnapshot{
		TrainNumber: "205",
		NextStation: "Layyah",
		Latitude:    30.75,
		Longitude:   71.75,
	}
	pct2, km2, ok := e.Estimate(threeQuarters, sched, route)
	require.True(t, ok)
	assert.InDelta(t, 91.6, pct2, 0.5)
	assert.Greater(t, pct2, pct1)
	assert.Greater(t, km2, km1)

	// Neither estimate may fall below the previous stop's share of
	// the route.
	base := 111.0 / 167.0 * 100
	assert.GreaterOrEqual(t, pct1, base)
	assert.GreaterOrEqual(t, pct2, base)
}

func timetableRoute() model.ScheduleEntry {
	return model.ScheduleEntry{
		TrainNumber: "101",
		Stations: []model.StationStop{
			{StationName: "Sangla", DepartureTime: "10:00", DistanceKm: 0},
			{StationName: "Chak Jhumra", ArrivalTime: "11:00", DistanceKm: 50},
			{StationName: "Faisalabad", ArrivalTime: "12:30", DistanceKm: 120},
		},
	}
}

func TestProgressBySegmentTime(t *testing.T) {
	sched := NewScheduleIndex([]model.ScheduleEntry{timetableRoute()})
	route := sched.FindRoute("101")
	train := &model.TrainSnapshot{TrainNumber: "101", NextStation: "Chak Jhumra"}

	// No GPS: halfway through the scheduled first segment means
	// half its 50 km covered.
	e := NewProgressEstimator(nil, clockAt(t, "2026-03-05 10:30"))
	pct, km, ok := e.Estimate(train, sched, route)
	require.True(t, ok)
	assert.InDelta(t, 25, km, 0.01)
	assert.InDelta(t, 25.0/120.0*100, pct, 0.1)

	// Overdue: the schedule alone never confirms arrival, so the
	// segment stays just short of done.
	e = NewProgressEstimator(nil, clockAt(t, "2026-03-05 11:30"))
	pct, km, ok = e.Estimate(train, sched, route)
	require.True(t, ok)
	assert.Less(t, km, 50.0)
	assert.Less(t, pct, 50.0/120.0*100)
}

func TestProgressByStopIndex(t *testing.T) {
	// A route with no distances, coordinates or parseable times
	// falls back to the previous stop's index.
	route := model.ScheduleEntry{
		TrainNumber: "41",
		Stations: []model.StationStop{
			{StationName: "A"},
			{StationName: "B"},
			{StationName: "C"},
		},
	}
	sched := NewScheduleIndex([]model.ScheduleEntry{route})

	e := NewProgressEstimator(nil, clockAt(t, "2026-03-05 08:00"))
	train := &model.TrainSnapshot{TrainNumber: "41", NextStation: "C"}
	pct, _, ok := e.Estimate(train, sched, sched.FindRoute("41"))
	require.True(t, ok)
	assert.InDelta(t, 50, pct, 0.01)
}

func TestProgressNotYetDeparted(t *testing.T) {
	e := NewProgressEstimator(nil, clockAt(t, "2026-03-05 09:00"))
	sched := NewScheduleIndex([]model.ScheduleEntry{timetableRoute()})
	route := sched.FindRoute("101")

	train := &model.TrainSnapshot{TrainNumber: "101", NextStation: "Sangla"}
	pct, km, ok := e.Estimate(train, sched, route)
	require.True(t, ok)
	assert.Equal(t, 0.0, pct)
	assert.Equal(t, 0.0, km)
}

func TestProgressNoEstimate(t *testing.T) {
	e := NewProgressEstimator(nil, clockAt(t, "2026-03-05 08:00"))

	_, _, ok := e.Estimate(&model.TrainSnapshot{}, NewScheduleIndex(nil), nil)
	assert.False(t, ok)

	// Route exists but holds a single stop.
	short := model.ScheduleEntry{TrainNumber: "41", Stations: []model.StationStop{{StationName: "A"}}}
	sched := NewScheduleIndex([]model.ScheduleEntry{short})
	_, _, ok = e.Estimate(&model.TrainSnapshot{TrainNumber: "41"}, sched, sched.FindRoute("41"))
	assert.False(t, ok)

	// Neither reported station is on the route.
	sched = NewScheduleIndex([]model.ScheduleEntry{timetableRoute()})
	train := &model.TrainSnapshot{TrainNumber: "101", NextStation: "Multan Cantt"}
	_, _, ok = e.Estimate(train, sched, sched.FindRoute("101"))
	assert.False(t, ok)
}

func TestClampPercent(t *testing.T) {
	assert.Equal(t, 0.0, clampPercent(-5))
	assert.Equal(t, 100.0, clampPercent(150))
	assert.Equal(t, 42.0, clampPercent(42))
}
