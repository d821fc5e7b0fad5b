// Package memstore is the reference in-memory ShortTermStore: per-process, not persisted across
// restarts, suitable for single-instance deployments and tests.
package memstore

import (
	"context"
	"sync"

	"github.com/weightwave/taskcast/pkg/taskcast"
)

type taskRecord struct {
	task   taskcast.Task
	events []taskcast.TaskEvent
	index  int64
	series map[string]taskcast.TaskEvent
	ttl    int64 // seconds; 0 = unset. Recorded for introspection only (see SetTTL doc).
}

// Store is a sync.RWMutex-guarded in-memory implementation of taskcast.ShortTermStore.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*taskRecord
}

// New constructs an empty Store.
func New() *Store {
	return &Store{tasks: make(map[string]*taskRecord)}
}

func (s *Store) recordLocked(taskID string) *taskRecord {
	r, ok := s.tasks[taskID]
	if !ok {
		r = &taskRecord{series: make(map[string]taskcast.TaskEvent)}
		s.tasks[taskID] = r
	}
	return r
}

// SaveTask upserts the full task record.
func (s *Store) SaveTask(_ context.Context, task taskcast.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recordLocked(task.ID)
	r.task = task
	return nil
}

// GetTask returns the task, or nil if unknown.
func (s *Store) GetTask(_ context.Context, taskID string) (*taskcast.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.tasks[taskID]
	if !ok {
		return nil, nil
	}
	t := r.task
	return &t, nil
}

// AppendEvent appends to the task's log.
func (s *Store) AppendEvent(_ context.Context, taskID string, event taskcast.TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recordLocked(taskID)
	r.events = append(r.events, event)
	return nil
}

// GetEvents returns events honoring cursor precedence (id > index > timestamp) and limit.
func (s *Store) GetEvents(_ context.Context, taskID string, opts *taskcast.GetEventsOptions) ([]taskcast.TaskEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.tasks[taskID]
	if !ok {
		return nil, nil
	}
	events := append([]taskcast.TaskEvent(nil), r.events...)

	if opts != nil && opts.Since != nil {
		events = applyCursor(events, opts.Since)
	}
	if opts != nil && opts.Limit != nil && *opts.Limit < len(events) {
		events = events[:*opts.Limit]
	}
	return events, nil
}

func applyCursor(events []taskcast.TaskEvent, since *taskcast.SinceCursor) []taskcast.TaskEvent {
	if since.ID != "" {
		for i, e := range events {
			if e.ID == since.ID {
				return events[i+1:]
			}
		}
		return events
	}
	if since.Index != nil {
		out := events[:0:0]
		for _, e := range events {
			if e.Index > *since.Index {
				out = append(out, e)
			}
		}
		return out
	}
	if since.Timestamp != nil {
		out := events[:0:0]
		for _, e := range events {
			if e.Timestamp > *since.Timestamp {
				out = append(out, e)
			}
		}
		return out
	}
	return events
}

// NextIndex atomically allocates the next 0-based index for taskID.
func (s *Store) NextIndex(_ context.Context, taskID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recordLocked(taskID)
	idx := r.index
	r.index++
	return idx, nil
}

// SetTTL is recorded for introspection; the in-memory store has no expiry timer since all state
// dies with the process regardless.
func (s *Store) SetTTL(_ context.Context, taskID string, seconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recordLocked(taskID)
	r.ttl = seconds
	return nil
}

// GetSeriesLatest returns the last stored event for (taskID, seriesID), or nil.
func (s *Store) GetSeriesLatest(_ context.Context, taskID, seriesID string) (*taskcast.TaskEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.tasks[taskID]
	if !ok {
		return nil, nil
	}
	e, ok := r.series[seriesID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// SetSeriesLatest upserts the series-latest entry.
func (s *Store) SetSeriesLatest(_ context.Context, taskID, seriesID string, event taskcast.TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recordLocked(taskID)
	r.series[seriesID] = event
	return nil
}

// ReplaceLastSeriesEvent replaces the previous series-latest entry in the log, searching from the
// tail for its event id, or appends if no previous entry is recorded.
func (s *Store) ReplaceLastSeriesEvent(_ context.Context, taskID, seriesID string, event taskcast.TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recordLocked(taskID)
	prev, hadPrev := r.series[seriesID]
	if hadPrev {
		for i := len(r.events) - 1; i >= 0; i-- {
			if r.events[i].ID == prev.ID {
				r.events[i] = event
				r.series[seriesID] = event
				return nil
			}
		}
	}
	r.events = append(r.events, event)
	r.series[seriesID] = event
	return nil
}
