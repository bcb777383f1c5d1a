// Package server exposes the reconciled live map over HTTP.
package server

import (
	"sort"
	"strings"
	"sync"
	"time"

	"pakrail.dev/telemetry"
	"pakrail.dev/telemetry/model"
)

// Store holds the latest reconciled batch and the schedule, guarded
// for concurrent readers. The feed poller writes, HTTP handlers read.
type Store struct {
	mu         sync.RWMutex
	trains     []model.ReconciledTrain
	byInnerKey map[string]*model.ReconciledTrain
	byNumber   map[string][]*model.ReconciledTrain
	schedule   *telemetry.ScheduleIndex
	lastUpdate time.Time
}

// NewStore creates a new store instance.
func NewStore() *Store {
	return &Store{
		byInnerKey: map[string]*model.ReconciledTrain{},
		byNumber:   map[string][]*model.ReconciledTrain{},
	}
}

// UpdateTrains replaces the reconciled batch and rebuilds indices.
func (s *Store) UpdateTrains(trains []model.ReconciledTrain) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trains = trains
	s.lastUpdate = time.Now()

	s.byInnerKey = make(map[string]*model.ReconciledTrain, len(trains))
	s.byNumber = make(map[string][]*model.ReconciledTrain)
	for i := range trains {
		t := &trains[i]
		s.byInnerKey[t.InnerKey] = t
		s.byNumber[t.TrainNumber] = append(s.byNumber[t.TrainNumber], t)
	}
}

// UpdateSchedule replaces the schedule index.
func (s *Store) UpdateSchedule(sched *telemetry.ScheduleIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedule = sched
}

// Schedule returns the current schedule index, possibly nil.
func (s *Store) Schedule() *telemetry.ScheduleIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schedule
}

// LastUpdate returns when the live batch was last replaced.
func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// Live returns all reconciled trains in batch order.
func (s *Store) Live() []model.ReconciledTrain {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ReconciledTrain, len(s.trains))
	copy(out, s.trains)
	return out
}

// Train resolves a train identifier to its live instances. A train
// number returns every instance in batch order; an inner key or feed
// train ID pins down a single run.
func (s *Store) Train(id string) []model.ReconciledTrain {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if instances := s.byNumber[id]; len(instances) > 0 {
		out := make([]model.ReconciledTrain, 0, len(instances))
		for _, t := range instances {
			out = append(out, *t)
		}
		return out
	}
	if t, ok := s.byInnerKey[id]; ok {
		return []model.ReconciledTrain{*t}
	}
	for i := range s.trains {
		if s.trains[i].TrainID == id && id != "" {
			return []model.ReconciledTrain{s.trains[i]}
		}
	}
	return nil
}

// Search matches live trains by number or fuzzy name.
func (s *Store) Search(query string) []model.ReconciledTrain {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.ReconciledTrain{}
	for i := range s.trains {
		t := &s.trains[i]
		if t.TrainNumber == q || strings.Contains(strings.ToUpper(t.TrainName), q) {
			out = append(out, *t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TrainNumber < out[j].TrainNumber
	})
	return out
}
