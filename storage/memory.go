package storage

import (
	"fmt"
	"sort"
	"time"
)

// In memory implementation of Storage below

type memoryMetadataKey struct {
	URL    string
	SHA256 string
}

type MemoryStorage struct {
	Schedules map[string]*MemoryStorageSchedule
	Metadata  map[memoryMetadataKey]*ScheduleMetadata
	ETACaches map[string]ETACacheRecord
}

type MemoryStorageSchedule struct {
	TrainRecords []*Train
	StopRecords  []*Stop
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Schedules: map[string]*MemoryStorageSchedule{},
		Metadata:  map[memoryMetadataKey]*ScheduleMetadata{},
		ETACaches: map[string]ETACacheRecord{},
	}
}

func (s *MemoryStorage) ListSchedules(filter ListSchedulesFilter) ([]*ScheduleMetadata, error) {
	schedules := []*ScheduleMetadata{}
	for _, metadata := range s.Metadata {
		if filter.URL != "" && metadata.URL != filter.URL {
			continue
		}
		if filter.SHA256 != "" && metadata.SHA256 != filter.SHA256 {
			continue
		}
		schedules = append(schedules, metadata)
	}
	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].RetrievedAt.After(schedules[j].RetrievedAt)
	})
	return schedules, nil
}

func (s *MemoryStorage) WriteScheduleMetadata(metadata *ScheduleMetadata) error {
	s.Metadata[memoryMetadataKey{metadata.URL, metadata.SHA256}] = metadata
	return nil
}

func (s *MemoryStorage) DeleteSchedule(url string, sha256 string) error {
	key := memoryMetadataKey{url, sha256}
	if _, found := s.Metadata[key]; !found {
		return fmt.Errorf("schedule not found")
	}
	delete(s.Metadata, key)
	delete(s.Schedules, sha256)
	return nil
}

func (s *MemoryStorage) GetReader(sha256 string) (ScheduleReader, error) {
	sched, ok := s.Schedules[sha256]
	if !ok {
		return nil, fmt.Errorf("schedule not found")
	}
	return sched, nil
}

func (s *MemoryStorage) GetWriter(sha256 string) (ScheduleWriter, error) {
	sched, ok := s.Schedules[sha256]
	if !ok {
		sched = &MemoryStorageSchedule{}
		s.Schedules[sha256] = sched
	}
	return sched, nil
}

func (s *MemoryStorage) ReadETACaches() ([]ETACacheRecord, error) {
	recs := make([]ETACacheRecord, 0, len(s.ETACaches))
	for _, rec := range s.ETACaches {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].InnerKey < recs[j].InnerKey
	})
	return recs, nil
}

func (s *MemoryStorage) WriteETACache(rec ETACacheRecord) error {
	s.ETACaches[rec.InnerKey] = rec
	return nil
}

func (s *MemoryStorage) PurgeETACaches(before time.Time) error {
	for key, rec := range s.ETACaches {
		if rec.StoredAt.Before(before) {
			delete(s.ETACaches, key)
		}
	}
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

func (sched *MemoryStorageSchedule) WriteTrain(train *Train) error {
	sched.TrainRecords = append(sched.TrainRecords, train)
	return nil
}

func (sched *MemoryStorageSchedule) WriteStop(stop *Stop) error {
	sched.StopRecords = append(sched.StopRecords, stop)
	return nil
}

func (sched *MemoryStorageSchedule) BeginStops() error { return nil }
func (sched *MemoryStorageSchedule) EndStops() error   { return nil }
func (sched *MemoryStorageSchedule) Close() error      { return nil }

func (sched *MemoryStorageSchedule) Trains() ([]*Train, error) {
	return sched.TrainRecords, nil
}

func (sched *MemoryStorageSchedule) Stops() ([]*Stop, error) {
	stops := make([]*Stop, len(sched.StopRecords))
	copy(stops, sched.StopRecords)
	sort.SliceStable(stops, func(i, j int) bool {
		if stops[i].TrainNumber != stops[j].TrainNumber {
			return stops[i].TrainNumber < stops[j].TrainNumber
		}
		return stops[i].Seq < stops[j].Seq
	})
	return stops, nil
}
