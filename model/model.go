package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Holds all external facing types and constants.

// Direction of travel. Pakistan Railways identifies services as UP or
// DN depending on which end of the line they run towards; the same
// train number exists in both directions.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DN"
)

// DirectionOf derives a train's direction from its name and number.
//
// Textual indicators win, with "DN"/"DOWN" checked before "UP" so a
// name like "Super Express Down" is not misread through the "UP" in
// "SUPER". When neither appears, fall back to train-number parity
// (even numbers run UP on this network). The parity rule is a
// heuristic inherited from the upstream data; its reliability is
// unknown, but no better rule is derivable from the feed.
func DirectionOf(trainNumber, trainName string) Direction {
	name := strings.ToUpper(trainName)
	number := strings.ToUpper(trainNumber)

	if strings.Contains(name, "DN") || strings.Contains(name, "DOWN") ||
		strings.Contains(number, "DN") || strings.Contains(number, "DOWN") {
		return DirectionDown
	}
	if strings.Contains(name, "UP") || strings.Contains(number, "UP") {
		return DirectionUp
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, trainNumber)
	if n, err := strconv.Atoi(digits); err == nil {
		if n%2 == 0 {
			return DirectionUp
		}
		return DirectionDown
	}

	return DirectionUp
}

// TrainSnapshot is one live telemetry record for a single train run.
// InnerKey identifies the run instance (train number + run date +
// fixed suffix); TrainNumber repeats daily across instances.
type TrainSnapshot struct {
	InnerKey         string
	TrainID          string
	TrainNumber      string
	TrainName        string
	SpeedKmh         float64
	LateByMin        int
	NextStation      string
	NextStationID    string
	CurrentStation   string
	PrevStationID    string
	NextStationETA   string // "HH:MM" as reported by the feed, "" if absent
	Latitude         float64
	Longitude        float64
	LastUpdated      time.Time
	Status           string
	LocomotiveNumber string
	IsLive           bool
}

// HasPosition reports whether the snapshot carries usable
// coordinates. The feed sends 0/0 when the locomotive's GPS unit is
// not reporting.
func (s *TrainSnapshot) HasPosition() bool {
	return s.Latitude != 0 && s.Longitude != 0
}

// StationStop is one entry of a train's published route.
type StationStop struct {
	StationID     string
	StationName   string
	ArrivalTime   string // "HH:MM", "" when the stop has no arrival (origin)
	DepartureTime string // "HH:MM", "" when the stop has no departure (terminus)
	DistanceKm    float64
	DayCount      int // 1 = day of departure, 2 = next day, ...
	Platform      string
	Latitude      float64
	Longitude     float64
	OrderNumber   int
}

// ArrivalMinutes returns the scheduled arrival as minutes since
// midnight.
func (s *StationStop) ArrivalMinutes() (int, bool) {
	return ParseHHMM(s.ArrivalTime)
}

// DepartureMinutes returns the scheduled departure as minutes since
// midnight.
func (s *StationStop) DepartureMinutes() (int, bool) {
	return ParseHHMM(s.DepartureTime)
}

// ScheduledMinutes returns the stop's scheduled time, preferring
// arrival over departure.
func (s *StationStop) ScheduledMinutes() (int, bool) {
	if m, ok := s.ArrivalMinutes(); ok {
		return m, true
	}
	return s.DepartureMinutes()
}

// HasPosition reports whether the stop has coordinates.
func (s *StationStop) HasPosition() bool {
	return s.Latitude != 0 && s.Longitude != 0
}

// ScheduleEntry is one train's full published route.
type ScheduleEntry struct {
	TrainID       string
	TrainNumber   string
	TrainName     string
	TrainNameUrdu string
	Stations      []StationStop
}

// Origin returns the first stop of the route, or nil for an empty
// route.
func (e *ScheduleEntry) Origin() *StationStop {
	if len(e.Stations) == 0 {
		return nil
	}
	return &e.Stations[0]
}

// Destination returns the last stop of the route, or nil for an empty
// route.
func (e *ScheduleEntry) Destination() *StationStop {
	if len(e.Stations) == 0 {
		return nil
	}
	return &e.Stations[len(e.Stations)-1]
}

// DateKey is a calendar date decoded from an InnerKey. SortKey is
// "YYYYMMDD", so lexicographic order is chronological order.
type DateKey struct {
	Day     int
	Month   int
	Year    int
	SortKey string
}

// ReconciledTrain is a TrainSnapshot augmented with derived values.
// Instances are produced fresh on every reconciliation pass and never
// persisted.
type ReconciledTrain struct {
	TrainSnapshot

	// ETATime is the resolved next-station ETA ("HH:MM"), or ""
	// when nothing was computable.
	ETATime string

	// DelayMinutes is the computed delay. When DelayKnown is
	// false, the value is the feed's raw LateBy and should be
	// treated as a display fallback only.
	DelayMinutes int
	DelayKnown   bool

	ProgressPercent   float64
	DistanceCoveredKm float64
}

// ParseHHMM parses a clock time into minutes since midnight. Accepts
// "HH:MM", "HH:MM:SS" and 12-hour forms like "6:30 PM", all of which
// occur in the upstream data. The feed's "--:--" placeholder parses
// as absent.
func ParseHHMM(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "--:--" {
		return 0, false
	}

	upper := strings.ToUpper(s)
	isPM := strings.HasSuffix(upper, "PM")
	isAM := strings.HasSuffix(upper, "AM")
	if isPM || isAM {
		upper = strings.TrimSpace(upper[:len(upper)-2])
	}

	parts := strings.Split(upper, ":")
	if len(parts) < 2 {
		return 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, false
	}
	if isPM && h != 12 {
		h += 12
	} else if isAM && h == 12 {
		h = 0
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// FormatHHMM renders minutes since midnight as "HH:MM", wrapping at
// day boundaries.
func FormatHHMM(minutes int) string {
	minutes %= 24 * 60
	if minutes < 0 {
		minutes += 24 * 60
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeStationName uppercases and trims a station name for
// comparison. The upstream datasets disagree on casing and padding
// for the same station.
func NormalizeStationName(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
