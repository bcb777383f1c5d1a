package telemetry

import (
	"time"

	"pakrail.dev/telemetry/model"
)

// ProgressEstimator derives how far along its route a train is, as a
// percentage and a covered distance. The base figure is the previous
// stop's published cumulative distance over the route length, refined
// within the current segment by GPS position or elapsed scheduled
// time.
type ProgressEstimator struct {
	opts *Options
	now  func() time.Time
}

// NewProgressEstimator constructs an estimator; nil clock means
// time.Now.
func NewProgressEstimator(opts *Options, now func() time.Time) *ProgressEstimator {
	if opts == nil {
		opts = DefaultOptions()
	}
	if now == nil {
		now = time.Now
	}
	return &ProgressEstimator{opts: opts, now: now}
}

// Estimate returns progress percent in [0,100] and distance covered
// in km. The boolean is false when the route supports no estimate.
func (e *ProgressEstimator) Estimate(t *model.TrainSnapshot, sched *ScheduleIndex, route *model.ScheduleEntry) (float64, float64, bool) {
	if route == nil || len(route.Stations) < 2 {
		return 0, 0, false
	}
	cur, next := segmentBounds(t, route)
	if cur < 0 {
		return 0, 0, false
	}

	total := sched.TotalDistanceKm(route)
	if total <= 0 {
		// No distance data at all: pure station-index ratio.
		pct := float64(cur) / float64(len(route.Stations)-1) * 100
		return clampPercent(pct), 0, true
	}

	dists := sched.StopDistancesKm(route)
	coveredKm := dists[cur]
	if segKm := dists[next] - dists[cur]; segKm > 0 {
		if frac, ok := e.segmentFraction(t, &route.Stations[cur], &route.Stations[next]); ok {
			coveredKm += segKm * frac
		}
	}
	return clampPercent(coveredKm / total * 100), coveredKm, true
}

// segmentBounds locates the stop pair the train is between. The next
// station wins over the current one when both are reported. Both
// indices are equal at the route's endpoints.
func segmentBounds(t *model.TrainSnapshot, route *model.ScheduleEntry) (cur, next int) {
	if i := FindStop(route, t.NextStation); i >= 0 {
		if i == 0 {
			return 0, 0
		}
		return i - 1, i
	}
	if j := FindStop(route, t.CurrentStation); j >= 0 {
		if j >= len(route.Stations)-1 {
			return j, j
		}
		return j, j + 1
	}
	return -1, -1
}

// segmentFraction estimates how much of the current segment is
// covered, in [0,1). GPS interpolation between the segment endpoints
// wins when the geometry supports it; otherwise elapsed time against
// the scheduled segment duration, capped short of done since the
// schedule alone cannot confirm arrival.
func (e *ProgressEstimator) segmentFraction(t *model.TrainSnapshot, prev, next *model.StationStop) (float64, bool) {
	if t.HasPosition() && prev.HasPosition() && next.HasPosition() {
		straight := HaversineKm(prev.Latitude, prev.Longitude, next.Latitude, next.Longitude)
		if straight > 0 {
			ratio := HaversineKm(prev.Latitude, prev.Longitude, t.Latitude, t.Longitude) / straight
			if ratio <= 1 {
				return ratio, true
			}
			// Off the straight-line geometry; let the
			// timetable decide instead.
		}
	}

	dep, ok := prev.DepartureMinutes()
	if !ok {
		if dep, ok = prev.ScheduledMinutes(); !ok {
			return 0, false
		}
	}
	arr, ok := next.ScheduledMinutes()
	if !ok || arr <= dep {
		return 0, false
	}
	now := e.now()
	elapsed := now.Hour()*60 + now.Minute() - dep
	if elapsed < 0 {
		return 0, false
	}
	frac := float64(elapsed) / float64(arr-dep)
	if frac > 0.99 {
		frac = 0.99
	}
	return frac, true
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
