package telemetry

import (
	"time"

	"pakrail.dev/telemetry/model"
)

// Reconciler is the top-level engine: it filters a raw feed batch,
// resolves an ETA and delay for each surviving train, and attaches a
// progress estimate. It owns the ETA cache across batches and is not
// safe for concurrent use.
type Reconciler struct {
	opts     *Options
	now      func() time.Time
	pipeline *Pipeline
	resolver *ETAResolver
	progress *ProgressEstimator
}

// NewReconciler constructs a reconciler. Pass nil opts for defaults
// and a nil clock for time.Now.
func NewReconciler(opts *Options, now func() time.Time) *Reconciler {
	if opts == nil {
		opts = DefaultOptions()
	}
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		opts:     opts,
		now:      now,
		pipeline: NewPipeline(opts, now),
		resolver: NewETAResolver(opts, now),
		progress: NewProgressEstimator(opts, now),
	}
}

// Reconcile processes one feed batch against the schedule. Output
// order follows the pipeline's deterministic ordering. A train whose
// ETA or progress cannot be resolved still appears in the output with
// those fields unset; only the filter stages drop trains.
func (r *Reconciler) Reconcile(trains []model.TrainSnapshot, sched *ScheduleIndex) []model.ReconciledTrain {
	kept := r.pipeline.Run(trains, sched)

	active := make(map[string]bool, len(kept))
	out := make([]model.ReconciledTrain, 0, len(kept))
	for i := range kept {
		t := kept[i]
		active[t.InnerKey] = true

		rec := model.ReconciledTrain{TrainSnapshot: t}
		route := sched.FindRoute(t.TrainNumber)

		if eta, _, ok := r.resolver.Resolve(&t, sched, route); ok {
			rec.ETATime = eta
			if route != nil {
				if si := FindStop(route, t.NextStation); si >= 0 {
					if d, known := DelayMinutes(eta, &route.Stations[si], r.opts); known {
						rec.DelayMinutes = d
						rec.DelayKnown = true
					}
				}
			}
		}
		if !rec.DelayKnown && t.LateByMin != 0 {
			rec.DelayMinutes = t.LateByMin
			rec.DelayKnown = true
		}

		if pct, km, ok := r.progress.Estimate(&t, sched, route); ok {
			rec.ProgressPercent = pct
			rec.DistanceCoveredKm = km
		}

		out = append(out, rec)
	}

	r.resolver.Prune(active)
	return out
}

// CacheLen exposes the size of the internal ETA cache, for
// diagnostics.
func (r *Reconciler) CacheLen() int { return r.resolver.CacheLen() }

// ExportETACache snapshots the ETA cache for persistence.
func (r *Reconciler) ExportETACache() []CachedETA { return r.resolver.ExportCache() }

// ImportETACache restores a persisted ETA cache.
func (r *Reconciler) ImportETACache(entries []CachedETA) { r.resolver.ImportCache(entries) }
