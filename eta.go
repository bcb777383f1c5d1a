package telemetry

import (
	"time"

	"pakrail.dev/telemetry/model"
)

// ETASource identifies which strategy produced a resolved ETA.
type ETASource int

const (
	// ETAFromFeed means the feed's own NextStationETA was plausible
	// and used as-is.
	ETAFromFeed ETASource = iota
	// ETAFromCache means a previously trusted feed ETA was reused.
	ETAFromCache
	// ETAComputed means the ETA was derived from position, speed
	// and the schedule.
	ETAComputed
)

func (s ETASource) String() string {
	switch s {
	case ETAFromFeed:
		return "feed"
	case ETAFromCache:
		return "cache"
	case ETAComputed:
		return "computed"
	default:
		return "unknown"
	}
}

type etaCacheEntry struct {
	eta         string
	etaMin      int
	nextStation string
	speedKmh    float64
	latitude    float64
	longitude   float64
	storedAt    time.Time
}

// ETAResolver turns a noisy feed ETA into a usable one, falling back
// to cached or computed estimates when the feed value is implausible.
// It keeps one cache entry per train instance (inner key) and is not
// safe for concurrent use; the reconciler serializes access.
type ETAResolver struct {
	opts  *Options
	now   func() time.Time
	cache map[string]*etaCacheEntry
}

// NewETAResolver constructs a resolver. The clock is injectable for
// tests; pass nil for time.Now.
func NewETAResolver(opts *Options, now func() time.Time) *ETAResolver {
	if opts == nil {
		opts = DefaultOptions()
	}
	if now == nil {
		now = time.Now
	}
	return &ETAResolver{
		opts:  opts,
		now:   now,
		cache: map[string]*etaCacheEntry{},
	}
}

// Resolve produces the best available ETA for the train's next
// station, as HH:MM, along with how it was obtained. The boolean is
// false only when no strategy could produce an estimate.
func (r *ETAResolver) Resolve(t *model.TrainSnapshot, sched *ScheduleIndex, route *model.ScheduleEntry) (string, ETASource, bool) {
	now := r.now()
	nowMin := now.Hour()*60 + now.Minute()

	// A stopped train's feed ETA goes stale in place; only a moving
	// train's feed value is considered at all.
	var feedMin int
	var feedTrusted, feedPast bool
	if t.SpeedKmh > 0 {
		feedMin, feedTrusted, feedPast = r.feedETAMinutes(t, nowMin)
	}
	if feedTrusted {
		// A fresh trusted feed ETA supersedes anything cached.
		r.storeCache(t, feedMin, now)
		return model.FormatHHMM(feedMin), ETAFromFeed, true
	}

	var fbMin int
	var fbSource ETASource
	var fbOK bool
	if cached, ok := r.cachedETA(t, now, nowMin); ok {
		fbMin, fbSource, fbOK = cached.etaMin, ETAFromCache, true
	} else if computedMin, ok := r.computeFallback(t, sched, route, now, nowMin); ok {
		fbMin, fbSource, fbOK = computedMin, ETAComputed, true
		r.storeCache(t, computedMin, now)
	}

	if fbOK {
		// A feed ETA rejected for sitting in the past still
		// competes with the fallback: whichever lands closer to
		// the scheduled arrival wins, the fallback on ties. When
		// both are well past now the train is simply arriving
		// ahead of either estimate and the feed value stands.
		if feedPast {
			if feedMin-nowMin < -r.opts.FeedETAPastSlackMin &&
				fbMin-nowMin < -r.opts.FeedETAPastSlackMin {
				return model.FormatHHMM(feedMin), ETAFromFeed, true
			}
			if r.closerToScheduled(t, route, feedMin, fbMin) == feedMin {
				return model.FormatHHMM(feedMin), ETAFromFeed, true
			}
		}
		return model.FormatHHMM(fbMin), fbSource, true
	}

	// Nothing else worked: surface the raw feed value if it at
	// least parses, even though it failed the plausibility checks.
	if raw, ok := model.ParseHHMM(t.NextStationETA); ok {
		return model.FormatHHMM(raw), ETAFromFeed, true
	}
	return "", ETAComputed, false
}

// storeCache records the resolved ETA together with the telemetry
// that triggered it, so later cycles can judge whether the entry
// still applies.
func (r *ETAResolver) storeCache(t *model.TrainSnapshot, etaMin int, now time.Time) {
	r.cache[t.InnerKey] = &etaCacheEntry{
		eta:         model.FormatHHMM(etaMin),
		etaMin:      etaMin,
		nextStation: t.NextStation,
		speedKmh:    t.SpeedKmh,
		latitude:    t.Latitude,
		longitude:   t.Longitude,
		storedAt:    now,
	}
}

// Prune drops cache entries past their TTL and entries whose train
// instance is no longer present in the feed.
func (r *ETAResolver) Prune(activeKeys map[string]bool) {
	now := r.now()
	for key, entry := range r.cache {
		if now.Sub(entry.storedAt) > r.opts.ETACacheTTL {
			delete(r.cache, key)
			continue
		}
		if activeKeys != nil && !activeKeys[key] {
			delete(r.cache, key)
		}
	}
}

// CacheLen reports the number of live cache entries.
func (r *ETAResolver) CacheLen() int { return len(r.cache) }

// CachedETA is one exported cache entry, for persistence across
// restarts.
type CachedETA struct {
	InnerKey    string
	ETA         string
	NextStation string
	SpeedKmh    float64
	Latitude    float64
	Longitude   float64
	StoredAt    time.Time
}

// ExportCache snapshots the current cache contents.
func (r *ETAResolver) ExportCache() []CachedETA {
	out := make([]CachedETA, 0, len(r.cache))
	for key, entry := range r.cache {
		out = append(out, CachedETA{
			InnerKey:    key,
			ETA:         entry.eta,
			NextStation: entry.nextStation,
			SpeedKmh:    entry.speedKmh,
			Latitude:    entry.latitude,
			Longitude:   entry.longitude,
			StoredAt:    entry.storedAt,
		})
	}
	return out
}

// ImportCache restores previously exported entries, skipping any past
// their TTL and any that would overwrite a fresher in-memory entry.
func (r *ETAResolver) ImportCache(entries []CachedETA) {
	now := r.now()
	for _, e := range entries {
		if now.Sub(e.StoredAt) > r.opts.ETACacheTTL {
			continue
		}
		if existing, ok := r.cache[e.InnerKey]; ok && existing.storedAt.After(e.StoredAt) {
			continue
		}
		etaMin, ok := model.ParseHHMM(e.ETA)
		if !ok {
			continue
		}
		r.cache[e.InnerKey] = &etaCacheEntry{
			eta:         e.ETA,
			etaMin:      etaMin,
			nextStation: e.NextStation,
			speedKmh:    e.SpeedKmh,
			latitude:    e.Latitude,
			longitude:   e.Longitude,
			storedAt:    e.StoredAt,
		}
	}
}

// feedETAMinutes parses and midnight-adjusts the feed ETA, then
// applies the plausibility checks. trusted reports whether the value
// sits inside the window; past reports a parseable value rejected
// for being more than the slack behind now.
func (r *ETAResolver) feedETAMinutes(t *model.TrainSnapshot, nowMin int) (etaMin int, trusted, past bool) {
	etaMin, ok := model.ParseHHMM(t.NextStationETA)
	if !ok {
		return 0, false, false
	}
	etaMin = wrapForwardPastMidnight(etaMin, nowMin, r.opts)

	ahead := etaMin - nowMin
	if ahead > r.opts.UntrustedETAMin {
		return etaMin, false, false
	}
	if ahead < -r.opts.FeedETAPastSlackMin {
		return etaMin, false, true
	}
	return etaMin, true, false
}

// wrapForwardPastMidnight pushes an ETA that reads as "before now"
// onto the next day when the gap looks like a midnight rollover
// rather than a genuinely stale value.
func wrapForwardPastMidnight(etaMin, nowMin int, opts *Options) int {
	if etaMin < opts.MidnightWrapMin && nowMin > minutesPerDay-opts.MidnightWrapMin {
		return etaMin + minutesPerDay
	}
	if diff := etaMin - nowMin; diff < 0 && diff > -opts.MidnightWrapMin {
		// Small negative gap: treat as already arrived rather
		// than tomorrow. Larger negative gaps wrap.
		return etaMin
	} else if diff <= -opts.MidnightWrapMin {
		return etaMin + minutesPerDay
	}
	return etaMin
}

// cachedETA returns a reusable cache entry for the train, if one
// exists and still applies. Reuse requires the train to still be
// heading to the same station, to be stopped or have slowed sharply
// since the entry was stored, and the cached ETA to still be usefully
// in the future.
func (r *ETAResolver) cachedETA(t *model.TrainSnapshot, now time.Time, nowMin int) (*etaCacheEntry, bool) {
	entry, ok := r.cache[t.InnerKey]
	if !ok {
		return nil, false
	}
	if now.Sub(entry.storedAt) > r.opts.ETACacheTTL {
		delete(r.cache, t.InnerKey)
		return nil, false
	}
	if !StationNamesMatch(entry.nextStation, t.NextStation) {
		return nil, false
	}

	stopped := t.SpeedKmh == 0
	decelerated := entry.speedKmh > 0 &&
		t.SpeedKmh < entry.speedKmh*(1-r.opts.DecelerationFraction)
	unchanged := t.SpeedKmh == entry.speedKmh &&
		t.Latitude == entry.latitude && t.Longitude == entry.longitude
	if !stopped && !decelerated && !unchanged {
		return nil, false
	}

	etaMin := wrapForwardPastMidnight(entry.etaMin, nowMin, r.opts)
	if etaMin-nowMin < r.opts.CacheMinLeadMin {
		return nil, false
	}
	return entry, true
}

// computeFallback estimates an ETA from the train's position and
// speed against the schedule: remaining distance to the next stop at
// the current (or a floor) speed.
func (r *ETAResolver) computeFallback(t *model.TrainSnapshot, sched *ScheduleIndex, route *model.ScheduleEntry, now time.Time, nowMin int) (int, bool) {
	if route == nil {
		return 0, false
	}
	nextIdx := FindStop(route, t.NextStation)
	if nextIdx < 0 {
		return 0, false
	}
	next := &route.Stations[nextIdx]

	var prev *model.StationStop
	var segKm float64
	if nextIdx > 0 {
		prev = &route.Stations[nextIdx-1]
		if dists := sched.StopDistancesKm(route); len(dists) > nextIdx {
			segKm = dists[nextIdx] - dists[nextIdx-1]
		}
	}

	var remainingKm float64
	if t.HasPosition() {
		remainingKm = r.remainingWithPosition(t, prev, next, segKm)
	} else if segKm > 0 {
		remainingKm = remainingByTimetable(segKm, prev, next, nowMin, t.LateByMin)
	}
	if remainingKm <= 0 {
		return 0, false
	}
	return kinematicETA(now, remainingKm, t.SpeedKmh), true
}

// remainingWithPosition prefers the published segment distance minus
// the portion already covered, measured as the ratio of straight-line
// distances from the previous stop. A ratio past 1.0 means the train
// is off the segment's straight-line geometry, so the direct distance
// to the next stop, inflated by the track routing factor, is used
// instead. The same inflated direct distance covers segments with no
// published length.
func (r *ETAResolver) remainingWithPosition(t *model.TrainSnapshot, prev, next *model.StationStop, segKm float64) float64 {
	if segKm > 0 && prev != nil && prev.HasPosition() && next.HasPosition() {
		straight := HaversineKm(prev.Latitude, prev.Longitude, next.Latitude, next.Longitude)
		if straight > 0 {
			ratio := HaversineKm(prev.Latitude, prev.Longitude, t.Latitude, t.Longitude) / straight
			if ratio <= 1 {
				return segKm * (1 - ratio)
			}
		}
	}
	if !next.HasPosition() {
		return 0
	}
	return HaversineKm(t.Latitude, t.Longitude, next.Latitude, next.Longitude) *
		r.opts.TrackRoutingFactor
}

// remainingByTimetable dead-reckons along the published segment when
// no coordinates are usable: elapsed time since the previous stop's
// departure, shifted by the reported lateness, against the scheduled
// segment duration. With no usable timetable the full segment is
// assumed to remain.
func remainingByTimetable(segKm float64, prev, next *model.StationStop, nowMin, lateByMin int) float64 {
	dep, ok := prev.DepartureMinutes()
	if !ok {
		if dep, ok = prev.ScheduledMinutes(); !ok {
			return segKm
		}
	}
	arr, ok := next.ScheduledMinutes()
	if !ok || arr <= dep {
		return segKm
	}
	elapsed := nowMin - dep - lateByMin
	if elapsed < 0 {
		elapsed = 0
	}
	frac := float64(elapsed) / float64(arr-dep)
	if frac > 0.95 {
		frac = 0.95
	}
	return segKm * (1 - frac)
}

// kinematicETA is remaining distance over speed, anchored at now. A
// stopped or crawling train is estimated at a conservative floor
// speed so the estimate stays finite.
func kinematicETA(now time.Time, remainingKm, speedKmh float64) int {
	const floorSpeedKmh = 20.0
	if speedKmh < floorSpeedKmh {
		speedKmh = floorSpeedKmh
	}
	mins := int(remainingKm / speedKmh * 60)
	eta := now.Add(time.Duration(mins) * time.Minute)
	return eta.Hour()*60 + eta.Minute()
}

// closerToScheduled picks between the rejected feed ETA and the
// fallback by distance to the scheduled arrival at the next stop.
// Ties and a missing schedule fall to the fallback.
func (r *ETAResolver) closerToScheduled(t *model.TrainSnapshot, route *model.ScheduleEntry, feedMin, fallbackMin int) int {
	schedMin := -1
	if route != nil {
		if i := FindStop(route, t.NextStation); i >= 0 {
			if m, ok := route.Stations[i].ScheduledMinutes(); ok {
				schedMin = m
			}
		}
	}
	if schedMin < 0 {
		return fallbackMin
	}
	if absInt(feedMin-schedMin) < absInt(fallbackMin-schedMin) {
		return feedMin
	}
	return fallbackMin
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
