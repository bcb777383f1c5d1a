package telemetry

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"time"

	"pakrail.dev/telemetry/downloader"
	"pakrail.dev/telemetry/model"
	"pakrail.dev/telemetry/parse"
	"pakrail.dev/telemetry/storage"
)

const (
	DefaultScheduleRefreshInterval = 12 * time.Hour
	DefaultScheduleTimeout         = 60 * time.Second
	DefaultScheduleMaxSize         = 50 << 20 // 50 MB
	DefaultLiveTTL                 = 30 * time.Second
	DefaultLiveTimeout             = 30 * time.Second
	DefaultLiveMaxSize             = 5 << 20 // 5 MB
)

var ErrNoSchedule = errors.New("no schedule found")

// Manager ties the downloader, parsers and storage together: it
// refreshes the schedule dump when stale, serves the newest stored
// schedule as a ScheduleIndex, and fetches live feed batches.
type Manager struct {
	ScheduleRefreshInterval time.Duration
	ScheduleTimeout         time.Duration
	ScheduleMaxSize         int
	LiveTTL                 time.Duration
	LiveTimeout             time.Duration
	LiveMaxSize             int
	Downloader              downloader.Downloader

	// DistancesCSV is an optional local CSV of per-train station
	// distances merged into each downloaded schedule before it is
	// persisted.
	DistancesCSV string

	storage storage.Storage
}

// Creates a new Manager on top of the given storage.
//
// By default the manager uses an in-memory cache for live feed data,
// but not for schedules, as these are persisted in storage.
func NewManager(s storage.Storage) *Manager {
	return &Manager{
		ScheduleRefreshInterval: DefaultScheduleRefreshInterval,
		ScheduleTimeout:         DefaultScheduleTimeout,
		ScheduleMaxSize:         DefaultScheduleMaxSize,
		LiveTTL:                 DefaultLiveTTL,
		LiveTimeout:             DefaultLiveTimeout,
		LiveMaxSize:             DefaultLiveMaxSize,

		Downloader: downloader.NewMemoryDownloader(),

		storage: s,
	}
}

// LoadSchedule returns the newest stored schedule for the URL as an
// index. ErrNoSchedule means nothing has been downloaded yet.
func (m *Manager) LoadSchedule(scheduleURL string) (*ScheduleIndex, error) {
	metas, err := m.storage.ListSchedules(storage.ListSchedulesFilter{URL: scheduleURL})
	if err != nil {
		return nil, fmt.Errorf("listing schedules: %w", err)
	}
	if len(metas) == 0 {
		return nil, ErrNoSchedule
	}

	reader, err := m.storage.GetReader(metas[0].SHA256)
	if err != nil {
		return nil, fmt.Errorf("getting reader: %w", err)
	}
	entries, err := readScheduleEntries(reader)
	if err != nil {
		return nil, err
	}
	return NewScheduleIndex(entries), nil
}

// RefreshSchedule downloads the schedule dump and persists it, unless
// the stored copy is fresh enough or the downloaded bytes hash to a
// schedule already in storage.
func (m *Manager) RefreshSchedule(ctx context.Context, scheduleURL string, headers map[string]string) error {
	metas, err := m.storage.ListSchedules(storage.ListSchedulesFilter{URL: scheduleURL})
	if err != nil {
		return fmt.Errorf("listing schedules: %w", err)
	}
	now := time.Now().UTC()
	if len(metas) > 0 && now.Sub(metas[0].RetrievedAt) < m.ScheduleRefreshInterval {
		return nil
	}

	buf, err := m.Downloader.Get(ctx, scheduleURL, headers, downloader.GetOptions{
		MaxSize: m.ScheduleMaxSize,
		Timeout: m.ScheduleTimeout,
	})
	if err != nil {
		return fmt.Errorf("downloading schedule: %w", err)
	}

	hash := fmt.Sprintf("%x", sha256.Sum256(buf))
	existing, err := m.storage.ListSchedules(storage.ListSchedulesFilter{
		URL:    scheduleURL,
		SHA256: hash,
	})
	if err != nil {
		return fmt.Errorf("listing schedules: %w", err)
	}
	if len(existing) > 0 {
		// Same bytes as before. Just bump the timestamp.
		existing[0].RetrievedAt = now
		return m.storage.WriteScheduleMetadata(existing[0])
	}

	entries, err := parse.ParseSchedule(buf)
	if err != nil {
		return fmt.Errorf("parsing schedule: %w", err)
	}
	if err := m.mergeDistances(entries); err != nil {
		return err
	}

	if err := m.writeSchedule(hash, entries); err != nil {
		return err
	}
	return m.storage.WriteScheduleMetadata(&storage.ScheduleMetadata{
		URL:         scheduleURL,
		SHA256:      hash,
		RetrievedAt: now,
		TrainCount:  len(entries),
	})
}

// LoadLive fetches and parses one live feed batch. The result is
// cached briefly so several consumers polling in lockstep share a
// single upstream request.
func (m *Manager) LoadLive(ctx context.Context, liveURL string, headers map[string]string) ([]model.TrainSnapshot, error) {
	buf, err := m.Downloader.Get(ctx, liveURL, headers, downloader.GetOptions{
		MaxSize:  m.LiveMaxSize,
		Timeout:  m.LiveTimeout,
		Cache:    true,
		CacheTTL: m.LiveTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("downloading live feed: %w", err)
	}
	return parse.ParseLiveFeed(buf)
}

// SaveETACache persists the reconciler's ETA cache.
func (m *Manager) SaveETACache(r *Reconciler) error {
	for _, e := range r.ExportETACache() {
		err := m.storage.WriteETACache(storage.ETACacheRecord{
			InnerKey:    e.InnerKey,
			ETA:         e.ETA,
			NextStation: e.NextStation,
			SpeedKmh:    e.SpeedKmh,
			Lat:         e.Latitude,
			Lon:         e.Longitude,
			StoredAt:    e.StoredAt,
		})
		if err != nil {
			return fmt.Errorf("writing eta cache: %w", err)
		}
	}
	return nil
}

// PurgeETACache drops persisted cache records stored before the given
// time. RestoreETACache skips expired records anyway; this just keeps
// the stored set from growing without bound.
func (m *Manager) PurgeETACache(before time.Time) error {
	return m.storage.PurgeETACaches(before)
}

// RestoreETACache loads the persisted ETA cache into the reconciler.
func (m *Manager) RestoreETACache(r *Reconciler) error {
	recs, err := m.storage.ReadETACaches()
	if err != nil {
		return fmt.Errorf("reading eta caches: %w", err)
	}
	entries := make([]CachedETA, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, CachedETA{
			InnerKey:    rec.InnerKey,
			ETA:         rec.ETA,
			NextStation: rec.NextStation,
			SpeedKmh:    rec.SpeedKmh,
			Latitude:    rec.Lat,
			Longitude:   rec.Lon,
			StoredAt:    rec.StoredAt,
		})
	}
	r.ImportETACache(entries)
	return nil
}

func (m *Manager) mergeDistances(entries []model.ScheduleEntry) error {
	if m.DistancesCSV == "" {
		return nil
	}
	f, err := os.Open(m.DistancesCSV)
	if err != nil {
		return fmt.Errorf("opening distances csv: %w", err)
	}
	defer f.Close()

	rows, err := parse.ParseDistances(f)
	if err != nil {
		return fmt.Errorf("parsing distances csv: %w", err)
	}
	parse.MergeDistances(entries, rows)
	return nil
}

func (m *Manager) writeSchedule(hash string, entries []model.ScheduleEntry) error {
	writer, err := m.storage.GetWriter(hash)
	if err != nil {
		return fmt.Errorf("getting writer: %w", err)
	}
	defer writer.Close()

	for i := range entries {
		e := &entries[i]
		err := writer.WriteTrain(&storage.Train{
			Number:   e.TrainNumber,
			Name:     e.TrainName,
			NameUrdu: e.TrainNameUrdu,
		})
		if err != nil {
			return fmt.Errorf("writing train: %w", err)
		}
	}

	if err := writer.BeginStops(); err != nil {
		return fmt.Errorf("beginning stops: %w", err)
	}
	for i := range entries {
		e := &entries[i]
		for j := range e.Stations {
			s := &e.Stations[j]
			err := writer.WriteStop(&storage.Stop{
				TrainNumber: e.TrainNumber,
				Seq:         j,
				StationID:   s.StationID,
				StationName: s.StationName,
				Arrival:     s.ArrivalTime,
				Departure:   s.DepartureTime,
				DistanceKm:  s.DistanceKm,
				DayCount:    s.DayCount,
				Platform:    s.Platform,
				Lat:         s.Latitude,
				Lon:         s.Longitude,
			})
			if err != nil {
				return fmt.Errorf("writing stop: %w", err)
			}
		}
	}
	if err := writer.EndStops(); err != nil {
		return fmt.Errorf("ending stops: %w", err)
	}
	return nil
}

func readScheduleEntries(reader storage.ScheduleReader) ([]model.ScheduleEntry, error) {
	trains, err := reader.Trains()
	if err != nil {
		return nil, fmt.Errorf("reading trains: %w", err)
	}
	stops, err := reader.Stops()
	if err != nil {
		return nil, fmt.Errorf("reading stops: %w", err)
	}

	stopsByTrain := map[string][]model.StationStop{}
	for _, s := range stops {
		stopsByTrain[s.TrainNumber] = append(stopsByTrain[s.TrainNumber], model.StationStop{
			StationID:     s.StationID,
			StationName:   s.StationName,
			ArrivalTime:   s.Arrival,
			DepartureTime: s.Departure,
			DistanceKm:    s.DistanceKm,
			DayCount:      s.DayCount,
			Platform:      s.Platform,
			Latitude:      s.Lat,
			Longitude:     s.Lon,
			OrderNumber:   s.Seq + 1,
		})
	}

	entries := make([]model.ScheduleEntry, 0, len(trains))
	for _, t := range trains {
		entries = append(entries, model.ScheduleEntry{
			TrainNumber:   t.Number,
			TrainName:     t.Name,
			TrainNameUrdu: t.NameUrdu,
			Stations:      stopsByTrain[t.Number],
		})
	}
	return entries, nil
}
