package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pakrail.dev/telemetry/model"
)

func clockAt(t *testing.T, value string) func() time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04", value)
	require.NoError(t, err)
	return func() time.Time { return parsed }
}

func testRoute() model.ScheduleEntry {
	return model.ScheduleEntry{
		TrainNumber: "13",
		TrainName:   "Awam Express",
		Stations: []model.StationStop{
			{StationName: "Karachi Cantt", DepartureTime: "06:00", DayCount: 1, Latitude: 24.85, Longitude: 67.02},
			{StationName: "Hyderabad Junction", ArrivalTime: "08:30", DayCount: 1, Latitude: 25.38, Longitude: 68.37},
			{StationName: "Rohri Junction", ArrivalTime: "13:00", DayCount: 1, Latitude: 27.68, Longitude: 68.90},
			{StationName: "Lahore Junction", ArrivalTime: "23:30", DayCount: 1, Latitude: 31.58, Longitude: 74.34},
		},
	}
}

func TestResolveTrustsPlausibleFeedETA(t *testing.T) {
	r := NewETAResolver(nil, clockAt(t, "2026-03-05 08:00"))
	route := testRoute()
	sched := NewScheduleIndex([]model.ScheduleEntry{route})

	train := &model.TrainSnapshot{
		InnerKey:       EncodeInnerKey("13", 5, 3),
		TrainNumber:    "13",
		NextStation:    "Hyderabad Junction",
		NextStationETA: "08:35",
		SpeedKmh:       80,
	}

	eta, source, ok := r.Resolve(train, sched, sched.FindRoute("13"))
	require.True(t, ok)
	assert.Equal(t, "08:35", eta)
	assert.Equal(t, ETAFromFeed, source)
	assert.Equal(t, 1, r.CacheLen())
}

func TestResolveRejectsFarFutureFeedETA(t *testing.T) {
	r := NewETAResolver(nil, clockAt(t, "2026-03-05 08:00"))
	route := testRoute()
	sched := NewScheduleIndex([]model.ScheduleEntry{route})

	// 15.5 hours out is beyond the trust horizon; with a position
	// and speed available the resolver computes instead, and the
	// computed estimate is cached for later cycles.
	train := &model.TrainSnapshot{
		InnerKey:       EncodeInnerKey("13", 5, 3),
		TrainNumber:    "13",
		NextStation:    "Hyderabad Junction",
		NextStationETA: "23:30",
		SpeedKmh:       80,
		Latitude:       25.00,
		Longitude:      67.50,
	}

	_, source, ok := r.Resolve(train, sched, sched.FindRoute("13"))
	require.True(t, ok)
	assert.Equal(t, ETAComputed, source)
	assert.Equal(t, 1, r.CacheLen())
}

func TestResolveReusesCacheWhenStopped(t *testing.T) {
	now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	r := NewETAResolver(nil, clock)
	route := testRoute()
	sched := NewScheduleIndex([]model.ScheduleEntry{route})

	train := &model.TrainSnapshot{
		InnerKey:       EncodeInnerKey("13", 5, 3),
		TrainNumber:    "13",
		NextStation:    "Hyderabad Junction",
		NextStationETA: "08:35",
		SpeedKmh:       80,
	}
	_, _, ok := r.Resolve(train, sched, sched.FindRoute("13"))
	require.True(t, ok)

	// Ten minutes on, the feed ETA has gone bad and the train has
	// stopped. The cached value still applies.
	now = now.Add(10 * time.Minute)
	train.NextStationETA = "--:--"
	train.SpeedKmh = 0

	eta, source, ok := r.Resolve(train, sched, sched.FindRoute("13"))
	require.True(t, ok)
	assert.Equal(t, "08:35", eta)
	assert.Equal(t, ETAFromCache, source)
}

func TestResolveCacheNotReusedForNewStation(t *testing.T) {
	now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	r := NewETAResolver(nil, clock)
	route := testRoute()
	sched := NewScheduleIndex([]model.ScheduleEntry{route})

	train := &model.TrainSnapshot{
		InnerKey:       EncodeInnerKey("13", 5, 3),
		TrainNumber:    "13",
		NextStation:    "Hyderabad Junction",
		NextStationETA: "08:05",
		SpeedKmh:       80,
	}
	_, _, ok := r.Resolve(train, sched, sched.FindRoute("13"))
	require.True(t, ok)

	// Past Hyderabad, heading for Rohri. The cached Hyderabad ETA
	// must not leak onto the new leg.
	now = now.Add(10 * time.Minute)
	train.NextStation = "Rohri Junction"
	train.NextStationETA = "--:--"
	train.SpeedKmh = 0
	train.Latitude = 25.38
	train.Longitude = 68.37

	_, source, ok := r.Resolve(train, sched, sched.FindRoute("13"))
	require.True(t, ok)
	assert.Equal(t, ETAComputed, source)
}

func TestResolveCacheExpires(t *testing.T) {
	now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	r := NewETAResolver(nil, clock)
	route := testRoute()
	sched := NewScheduleIndex([]model.ScheduleEntry{route})

	train := &model.TrainSnapshot{
		InnerKey:       EncodeInnerKey("13", 5, 3),
		TrainNumber:    "13",
		NextStation:    "Lahore Junction",
		NextStationETA: "09:30",
		SpeedKmh:       80,
	}
	_, _, ok := r.Resolve(train, sched, sched.FindRoute("13"))
	require.True(t, ok)

	// Past the TTL the entry is gone, regardless of anything
	// else; the fresh computed estimate replaces it.
	now = now.Add(61 * time.Minute)
	train.NextStationETA = "--:--"
	train.SpeedKmh = 0
	train.Latitude = 27.00
	train.Longitude = 68.80

	eta, source, ok := r.Resolve(train, sched, sched.FindRoute("13"))
	require.True(t, ok)
	assert.Equal(t, ETAComputed, source)
	assert.NotEqual(t, "09:30", eta)
	assert.Equal(t, 1, r.CacheLen())
}

func TestResolveStoppedTrainSkipsFeedETA(t *testing.T) {
	r := NewETAResolver(nil, clockAt(t, "2026-03-05 08:00"))
	route := testRoute()
	sched := NewScheduleIndex([]model.ScheduleEntry{route})

	// The feed reports a plausible-looking ETA, but the train is
	// standing still; a stopped train's feed ETA goes stale in
	// place and must not be trusted.
	train := &model.TrainSnapshot{
		InnerKey:       EncodeInnerKey("13", 5, 3),
		TrainNumber:    "13",
		NextStation:    "Hyderabad Junction",
		NextStationETA: "08:35",
		SpeedKmh:       0,
		Latitude:       25.00,
		Longitude:      67.50,
	}

	eta, source, ok := r.Resolve(train, sched, sched.FindRoute("13"))
	require.True(t, ok)
	assert.Equal(t, ETAComputed, source)
	assert.NotEqual(t, "08:35", eta)
}

func TestResolveCacheReuseChecksPosition(t *testing.T) {
	seed := func(t *testing.T, now *time.Time) (*ETAResolver, *ScheduleIndex, *model.TrainSnapshot) {
		t.Helper()
		r := NewETAResolver(nil, func() time.Time { return *now })
		sched := NewScheduleIndex([]model.ScheduleEntry{testRoute()})
		train := &model.TrainSnapshot{
			InnerKey:       EncodeInnerKey("13", 5, 3),
			TrainNumber:    "13",
			NextStation:    "Hyderabad Junction",
			NextStationETA: "08:40",
			SpeedKmh:       80,
			Latitude:       25.00,
			Longitude:      67.50,
		}
		_, source, ok := r.Resolve(train, sched, sched.FindRoute("13"))
		require.True(t, ok)
		require.Equal(t, ETAFromFeed, source)
		return r, sched, train
	}

	t.Run("unchanged speed and position reuses", func(t *testing.T) {
		now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
		r, sched, train := seed(t, &now)

		now = now.Add(10 * time.Minute)
		train.NextStationETA = "--:--"

		eta, source, ok := r.Resolve(train, sched, sched.FindRoute("13"))
		require.True(t, ok)
		assert.Equal(t, ETAFromCache, source)
		assert.Equal(t, "08:40", eta)
	})

	t.Run("moved train at same speed recomputes", func(t *testing.T) {
		now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
		r, sched, train := seed(t, &now)

		now = now.Add(10 * time.Minute)
		train.NextStationETA = "--:--"
		train.Latitude = 25.10
		train.Longitude = 67.70

		_, source, ok := r.Resolve(train, sched, sched.FindRoute("13"))
		require.True(t, ok)
		assert.Equal(t, ETAComputed, source)
	})
}

func TestResolvePastFeedETACompetesWithFallback(t *testing.T) {
	now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	r := NewETAResolver(nil, func() time.Time { return now })
	sched := NewScheduleIndex([]model.ScheduleEntry{testRoute()})

	train := &model.TrainSnapshot{
		InnerKey:       EncodeInnerKey("13", 5, 3),
		TrainNumber:    "13",
		NextStation:    "Hyderabad Junction",
		NextStationETA: "08:50",
		SpeedKmh:       80,
	}
	_, source, ok := r.Resolve(train, sched, sched.FindRoute("13"))
	require.True(t, ok)
	require.Equal(t, ETAFromFeed, source)

	// At 08:30 the feed has flipped to 08:15, fifteen minutes in
	// the past. Scheduled arrival is 08:30: the past feed value
	// sits closer to it than the cached 08:50, so it wins.
	now = now.Add(30 * time.Minute)
	train.NextStationETA = "08:15"

	eta, source, ok := r.Resolve(train, sched, sched.FindRoute("13"))
	require.True(t, ok)
	assert.Equal(t, ETAFromFeed, source)
	assert.Equal(t, "08:15", eta)
}

func TestComputeFallbackUsesPublishedSegment(t *testing.T) {
	// The rails wind: the published segment is 100 km though the
	// stops sit only ~55 km apart by great circle. A train right at
	// the previous stop has the full published distance ahead of
	// it, not the inflated straight line.
	route := model.ScheduleEntry{
		TrainNumber: "102",
		Stations: []model.StationStop{
			{StationName: "Khanewal", DepartureTime: "10:00", DistanceKm: 0, Latitude: 30.30, Longitude: 71.93},
			{StationName: "Multan Cantt", ArrivalTime: "12:00", DistanceKm: 100, Latitude: 30.80, Longitude: 71.93},
		},
	}
	sched := NewScheduleIndex([]model.ScheduleEntry{route})
	r := NewETAResolver(nil, clockAt(t, "2026-03-05 10:00"))

	train := &model.TrainSnapshot{
		InnerKey:    EncodeInnerKey("102", 5, 3),
		TrainNumber: "102",
		NextStation: "Multan Cantt",
		SpeedKmh:    50,
		Latitude:    30.30,
		Longitude:   71.93,
	}

	eta, source, ok := r.Resolve(train, sched, sched.FindRoute("102"))
	require.True(t, ok)
	assert.Equal(t, ETAComputed, source)
	assert.Equal(t, "12:00", eta)
}

func TestComputeFallbackFromTimetable(t *testing.T) {
	// No GPS at all: dead-reckon along the published segment. The
	// train left the first stop five minutes late at 10:05; at
	// 10:35 it has covered half the 50 km segment, leaving 25 km,
	// thirty minutes at 50 km/h.
	route := model.ScheduleEntry{
		TrainNumber: "101",
		Stations: []model.StationStop{
			{StationName: "Sangla", DepartureTime: "10:00", DistanceKm: 0},
			{StationName: "Chak Jhumra", ArrivalTime: "11:00", DistanceKm: 50},
			{StationName: "Faisalabad", ArrivalTime: "12:30", DistanceKm: 120},
		},
	}
	sched := NewScheduleIndex([]model.ScheduleEntry{route})
	r := NewETAResolver(nil, clockAt(t, "2026-03-05 10:35"))

	train := &model.TrainSnapshot{
		InnerKey:    EncodeInnerKey("101", 5, 3),
		TrainNumber: "101",
		NextStation: "Chak Jhumra",
		SpeedKmh:    50,
		LateByMin:   5,
	}

	eta, source, ok := r.Resolve(train, sched, sched.FindRoute("101"))
	require.True(t, ok)
	assert.Equal(t, ETAComputed, source)
	assert.Equal(t, "11:05", eta)

	delay, known := DelayMinutes(eta, &route.Stations[1], DefaultOptions())
	require.True(t, known)
	assert.Equal(t, 5, delay)
}

func TestKinematicETA(t *testing.T) {
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	// 25 km remaining at 50 km/h: thirty minutes out.
	assert.Equal(t, 10*60+30, kinematicETA(now, 25, 50))

	// A stopped train is estimated at the floor speed.
	assert.Equal(t, 10*60+75, kinematicETA(now, 25, 0))
}

func TestPruneDropsInactiveKeys(t *testing.T) {
	r := NewETAResolver(nil, clockAt(t, "2026-03-05 08:00"))
	route := testRoute()
	sched := NewScheduleIndex([]model.ScheduleEntry{route})

	for _, day := range []int{4, 5} {
		train := &model.TrainSnapshot{
			InnerKey:       EncodeInnerKey("13", day, 3),
			TrainNumber:    "13",
			NextStation:    "Hyderabad Junction",
			NextStationETA: "08:35",
			SpeedKmh:       80,
		}
		_, _, ok := r.Resolve(train, sched, sched.FindRoute("13"))
		require.True(t, ok)
	}
	require.Equal(t, 2, r.CacheLen())

	r.Prune(map[string]bool{EncodeInnerKey("13", 5, 3): true})
	assert.Equal(t, 1, r.CacheLen())
}

func TestExportImportCache(t *testing.T) {
	clock := clockAt(t, "2026-03-05 08:00")
	r := NewETAResolver(nil, clock)
	route := testRoute()
	sched := NewScheduleIndex([]model.ScheduleEntry{route})

	train := &model.TrainSnapshot{
		InnerKey:       EncodeInnerKey("13", 5, 3),
		TrainNumber:    "13",
		NextStation:    "Hyderabad Junction",
		NextStationETA: "08:35",
		SpeedKmh:       80,
	}
	_, _, ok := r.Resolve(train, sched, sched.FindRoute("13"))
	require.True(t, ok)

	exported := r.ExportCache()
	require.Len(t, exported, 1)
	assert.Equal(t, "08:35", exported[0].ETA)

	fresh := NewETAResolver(nil, clock)
	fresh.ImportCache(exported)
	assert.Equal(t, 1, fresh.CacheLen())
}
