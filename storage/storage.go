package storage

import (
	"time"
)

// Storage persists downloaded schedules and the engine's ETA cache so
// a restarted process does not fall back to computed estimates for
// every train at once.
type Storage interface {
	// Retrieves all schedule metadata records matching the given
	// filter.
	ListSchedules(filter ListSchedulesFilter) ([]*ScheduleMetadata, error)

	// Writes a ScheduleMetadata record. If a record with the same
	// URL and hash exists, it is updated.
	WriteScheduleMetadata(metadata *ScheduleMetadata) error

	DeleteSchedule(url string, sha256 string) error

	// Gets a reader for the schedule with the given hash.
	GetReader(sha256 string) (ScheduleReader, error)

	// Gets a writer for the schedule with the given hash.
	GetWriter(sha256 string) (ScheduleWriter, error)

	// Reads all persisted ETA cache records.
	ReadETACaches() ([]ETACacheRecord, error)

	// Writes an ETA cache record, replacing any record with the
	// same inner key.
	WriteETACache(rec ETACacheRecord) error

	// Deletes ETA cache records stored before the given time.
	PurgeETACaches(before time.Time) error

	Close() error
}

type ListSchedulesFilter struct {
	// If set, only include schedules with the given URL.
	URL string

	// If set, only include schedules with the given hash.
	SHA256 string
}

// Metadata for a downloaded schedule dump. The parsed routes are
// accessed via ScheduleReader.
type ScheduleMetadata struct {
	URL         string
	SHA256      string
	RetrievedAt time.Time
	TrainCount  int
}

// Writes route records for a single schedule dump.
//
// Stop rows dominate the volume, so BeginStops() and EndStops() wrap
// all calls to WriteStop(), allowing transactions/batching.
type ScheduleWriter interface {
	WriteTrain(train *Train) error
	WriteStop(stop *Stop) error
	BeginStops() error
	EndStops() error
	Close() error
}

type ScheduleReader interface {
	Trains() ([]*Train, error)
	Stops() ([]*Stop, error)
}

// Train is one service as stored.
type Train struct {
	Number   string
	Name     string
	NameUrdu string
}

// Stop is one route entry as stored, ordered by Seq within a train.
type Stop struct {
	TrainNumber string
	Seq         int
	StationID   string
	StationName string
	Arrival     string
	Departure   string
	DistanceKm  float64
	DayCount    int
	Platform    string
	Lat         float64
	Lon         float64
}

// ETACacheRecord is one persisted ETA cache entry, keyed by the run's
// inner key.
type ETACacheRecord struct {
	InnerKey    string
	ETA         string
	NextStation string
	SpeedKmh    float64
	Lat         float64
	Lon         float64
	StoredAt    time.Time
}
