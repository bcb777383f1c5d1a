package telemetry

import "pakrail.dev/telemetry/model"

const minutesPerDay = 24 * 60

// DelayMinutes compares a live ETA (HH:MM wall-clock) against a
// stop's scheduled time and returns the delay in minutes, positive
// when late. The second return is false when either time is
// unparseable.
//
// Both times are minutes-of-day with no date attached, so a raw
// subtraction near midnight can be off by a full day. Multi-day stops
// (DayCount > 1) fold any difference beyond half a day back; for
// same-day stops, an early-morning ETA against a late-evening
// schedule is read as the train running past midnight.
func DelayMinutes(etaHHMM string, stop *model.StationStop, opts *Options) (int, bool) {
	if stop == nil {
		return 0, false
	}
	eta, ok := model.ParseHHMM(etaHHMM)
	if !ok {
		return 0, false
	}
	sched, ok := stop.ScheduledMinutes()
	if !ok {
		return 0, false
	}

	raw := eta - sched
	if stop.DayCount > 1 {
		if raw > minutesPerDay/2 {
			return raw - minutesPerDay, true
		}
		if raw < -minutesPerDay/2 {
			return raw + minutesPerDay, true
		}
		return raw, true
	}

	if eta < opts.MidnightWrapMin && sched >= minutesPerDay-opts.MidnightWrapMin {
		return raw + minutesPerDay, true
	}
	if raw > minutesPerDay/2 {
		return raw - minutesPerDay, true
	}
	if raw < -minutesPerDay/2 {
		return raw + minutesPerDay, true
	}
	return raw, true
}
