package telemetry

import "time"

// Engine thresholds. The delay and ETA cutoffs are empirically chosen
// for this network's feed; they are options rather than constants so
// deployments can tune them without a rebuild.
const (
	// A computed delay at or beyond this magnitude indicates a
	// telemetry/schedule mismatch, not a real day-long delay.
	DefaultUnrealisticDelayMin = 1440

	// A feed ETA further out than this is not trusted.
	DefaultUntrustedETAMin = 300

	// A feed ETA this many minutes in the past is not trusted.
	DefaultFeedETAPastSlackMin = 10

	// Raw ETA-minus-now differences in (-DefaultMidnightWrapMin, 0)
	// are treated as having crossed midnight.
	DefaultMidnightWrapMin = 360

	// Cached fallback ETAs older than this are never reused.
	DefaultETACacheTTL = time.Hour

	// A cached ETA must still be this far in the future to be
	// reused.
	DefaultCacheMinLeadMin = 5

	// A stopped train at its destination is dropped once its last
	// update is older than this.
	DefaultStaleCompletedAge = 30 * time.Minute

	// Snapshot dates kept by the recent-dates filter.
	DefaultRecentDateWindow = 3

	// Distinct dates and instances-per-date kept per
	// (trainNumber, direction) group by the duplicate filter.
	DefaultDedupDateWindow       = 2
	DefaultDedupInstancesPerDate = 2

	// Straight-line distances are inflated by this factor to
	// approximate track routing.
	DefaultTrackRoutingFactor = 1.3

	// Speed drop (as a fraction of the cached speed) that counts
	// as decelerating for cache-reuse purposes.
	DefaultDecelerationFraction = 0.2
)

// Options holds the engine's tunable parameters. The zero value is
// not usable; start from DefaultOptions.
type Options struct {
	UnrealisticDelayMin   int
	UntrustedETAMin       int
	FeedETAPastSlackMin   int
	MidnightWrapMin       int
	ETACacheTTL           time.Duration
	CacheMinLeadMin       int
	StaleCompletedAge     time.Duration
	RecentDateWindow      int
	DedupDateWindow       int
	DedupInstancesPerDate int
	TrackRoutingFactor    float64
	DecelerationFraction  float64
}

// DefaultOptions returns the standard engine configuration.
func DefaultOptions() *Options {
	return &Options{
		UnrealisticDelayMin:   DefaultUnrealisticDelayMin,
		UntrustedETAMin:       DefaultUntrustedETAMin,
		FeedETAPastSlackMin:   DefaultFeedETAPastSlackMin,
		MidnightWrapMin:       DefaultMidnightWrapMin,
		ETACacheTTL:           DefaultETACacheTTL,
		CacheMinLeadMin:       DefaultCacheMinLeadMin,
		StaleCompletedAge:     DefaultStaleCompletedAge,
		RecentDateWindow:      DefaultRecentDateWindow,
		DedupDateWindow:       DefaultDedupDateWindow,
		DedupInstancesPerDate: DefaultDedupInstancesPerDate,
		TrackRoutingFactor:    DefaultTrackRoutingFactor,
		DecelerationFraction:  DefaultDecelerationFraction,
	}
}
