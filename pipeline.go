package telemetry

import (
	"sort"
	"time"

	"pakrail.dev/telemetry/model"
)

// Pipeline filters a raw feed snapshot set down to the train
// instances worth reconciling. Stages are exported individually so
// callers and tests can exercise them in isolation; Run applies them
// in order. All stages are pure given the injected clock.
type Pipeline struct {
	opts *Options
	now  func() time.Time
}

// NewPipeline constructs a pipeline. Pass a nil clock for time.Now.
func NewPipeline(opts *Options, now func() time.Time) *Pipeline {
	if opts == nil {
		opts = DefaultOptions()
	}
	if now == nil {
		now = time.Now
	}
	return &Pipeline{opts: opts, now: now}
}

// Run applies every filter stage in order.
func (p *Pipeline) Run(trains []model.TrainSnapshot, sched *ScheduleIndex) []model.TrainSnapshot {
	trains = p.KeepRecentDates(trains)
	trains = p.Deduplicate(trains)
	trains = p.DropCompleted(trains, sched)
	trains = p.DropUnrealisticDelays(trains, sched)
	trains = p.RequireSchedule(trains, sched)
	return trains
}

// KeepRecentDates keeps only instances whose inner key decodes to one
// of the newest service dates in the batch. Instances with an
// undecodable key are dropped; they cannot be ordered against the
// rest.
func (p *Pipeline) KeepRecentDates(trains []model.TrainSnapshot) []model.TrainSnapshot {
	year := p.now().Year()
	keys := make(map[string]*model.DateKey, len(trains))
	sortKeys := map[string]bool{}
	for i := range trains {
		dk := DecodeDateKey(trains[i].InnerKey, trains[i].TrainNumber, year)
		if dk == nil {
			continue
		}
		keys[trains[i].InnerKey] = dk
		sortKeys[dk.SortKey] = true
	}

	ordered := make([]string, 0, len(sortKeys))
	for k := range sortKeys {
		ordered = append(ordered, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ordered)))
	if len(ordered) > p.opts.RecentDateWindow {
		ordered = ordered[:p.opts.RecentDateWindow]
	}
	recent := map[string]bool{}
	for _, k := range ordered {
		recent[k] = true
	}

	out := trains[:0]
	for i := range trains {
		dk, ok := keys[trains[i].InnerKey]
		if ok && recent[dk.SortKey] {
			out = append(out, trains[i])
		}
	}
	return out
}

// Deduplicate bounds how many instances of the same train survive:
// per (train number, direction), at most the configured number of the
// newest service dates, and within each date at most the configured
// number of instances. Output is ordered by train number ascending,
// then service date descending, which keeps the whole pipeline
// deterministic regardless of input order.
func (p *Pipeline) Deduplicate(trains []model.TrainSnapshot) []model.TrainSnapshot {
	year := p.now().Year()

	type keyed struct {
		t       model.TrainSnapshot
		sortKey string
	}
	groups := map[string][]keyed{}
	for i := range trains {
		t := trains[i]
		dk := DecodeDateKey(t.InnerKey, t.TrainNumber, year)
		sortKey := ""
		if dk != nil {
			sortKey = dk.SortKey
		}
		g := t.TrainNumber + "|" + string(model.DirectionOf(t.TrainNumber, t.TrainName))
		groups[g] = append(groups[g], keyed{t: t, sortKey: sortKey})
	}

	groupNames := make([]string, 0, len(groups))
	for g := range groups {
		groupNames = append(groupNames, g)
	}
	sort.Strings(groupNames)

	var out []model.TrainSnapshot
	for _, g := range groupNames {
		members := groups[g]
		sort.SliceStable(members, func(i, j int) bool {
			if members[i].sortKey != members[j].sortKey {
				return members[i].sortKey > members[j].sortKey
			}
			return members[i].t.InnerKey < members[j].t.InnerKey
		})

		dates := 0
		perDate := 0
		lastDate := ""
		for _, m := range members {
			if m.sortKey != lastDate {
				if dates == p.opts.DedupDateWindow {
					break
				}
				dates++
				perDate = 0
				lastDate = m.sortKey
			}
			if perDate == p.opts.DedupInstancesPerDate {
				continue
			}
			perDate++
			out = append(out, m.t)
		}
	}
	return out
}

// DropCompleted removes instances that look like finished journeys: a
// stale, stopped train reported at (or fuzzily matching) its route's
// final stop. With no schedule loaded this stage is a no-op, since
// "reached the destination" cannot be judged.
func (p *Pipeline) DropCompleted(trains []model.TrainSnapshot, sched *ScheduleIndex) []model.TrainSnapshot {
	if sched.Empty() {
		return trains
	}
	now := p.now()
	out := trains[:0]
	for i := range trains {
		t := trains[i]
		if !p.looksCompleted(&t, sched, now) {
			out = append(out, t)
		}
	}
	return out
}

func (p *Pipeline) looksCompleted(t *model.TrainSnapshot, sched *ScheduleIndex, now time.Time) bool {
	route := sched.FindRoute(t.TrainNumber)
	if route == nil || len(route.Stations) == 0 {
		return false
	}
	dest := route.Destination()
	atDest := StationNamesMatch(t.NextStation, dest.StationName) ||
		StationNamesMatch(t.CurrentStation, dest.StationName)
	if !atDest {
		return false
	}
	if t.SpeedKmh != 0 {
		return false
	}
	return now.Sub(t.LastUpdated) > p.opts.StaleCompletedAge
}

// DropUnrealisticDelays removes instances whose delay magnitude is a
// day or more. The delay is taken from the feed ETA against the
// schedule when possible, falling back to the feed's own late-by
// figure.
func (p *Pipeline) DropUnrealisticDelays(trains []model.TrainSnapshot, sched *ScheduleIndex) []model.TrainSnapshot {
	out := trains[:0]
	for i := range trains {
		t := trains[i]
		delay, known := p.feedDelay(&t, sched)
		if known && absInt(delay) >= p.opts.UnrealisticDelayMin {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (p *Pipeline) feedDelay(t *model.TrainSnapshot, sched *ScheduleIndex) (int, bool) {
	route := sched.FindRoute(t.TrainNumber)
	if route != nil {
		if i := FindStop(route, t.NextStation); i >= 0 {
			if d, ok := DelayMinutes(t.NextStationETA, &route.Stations[i], p.opts); ok {
				return d, true
			}
		}
	}
	if t.LateByMin != 0 {
		return t.LateByMin, true
	}
	return 0, false
}

// RequireSchedule keeps only trains with a published route, unless no
// schedule is loaded at all, in which case everything passes.
func (p *Pipeline) RequireSchedule(trains []model.TrainSnapshot, sched *ScheduleIndex) []model.TrainSnapshot {
	if sched.Empty() {
		return trains
	}
	out := trains[:0]
	for i := range trains {
		if sched.FindRoute(trains[i].TrainNumber) != nil {
			out = append(out, trains[i])
		}
	}
	return out
}
