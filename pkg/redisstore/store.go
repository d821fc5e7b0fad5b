// Package redisstore implements taskcast.ShortTermStore over Redis, letting multiple process
// instances share one task's live state and event log. Grounded in original_source's Redis-backed
// reference implementation of the short-term store.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/weightwave/taskcast/pkg/taskcast"
)

// Store is a Redis-backed taskcast.ShortTermStore. Key scheme:
//
//	{prefix}:task:{id}                  task record (string, JSON)
//	{prefix}:events:{id}                per-task append log (list, JSON per element)
//	{prefix}:idx:{id}                   atomic index counter (string, integer)
//	{prefix}:series:{taskId}:{seriesId} series latest (string, JSON)
//	{prefix}:seriesIds:{taskId}         set of series ids per task (for TTL fan-out)
type Store struct {
	client *redis.Client
	prefix string
}

// New constructs a Store using prefix as the key namespace (default "taskcast" if empty).
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "taskcast"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) taskKey(id string) string       { return fmt.Sprintf("%s:task:%s", s.prefix, id) }
func (s *Store) eventsKey(id string) string     { return fmt.Sprintf("%s:events:%s", s.prefix, id) }
func (s *Store) idxKey(id string) string        { return fmt.Sprintf("%s:idx:%s", s.prefix, id) }
func (s *Store) seriesIDsKey(id string) string  { return fmt.Sprintf("%s:seriesIds:%s", s.prefix, id) }
func (s *Store) seriesKey(taskID, seriesID string) string {
	return fmt.Sprintf("%s:series:%s:%s", s.prefix, taskID, seriesID)
}

// SaveTask upserts the task record as JSON.
func (s *Store) SaveTask(ctx context.Context, task taskcast.Task) error {
	b, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.taskKey(task.ID), b, 0).Err()
}

// GetTask returns the task, or nil if unknown.
func (s *Store) GetTask(ctx context.Context, taskID string) (*taskcast.Task, error) {
	b, err := s.client.Get(ctx, s.taskKey(taskID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var t taskcast.Task
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// AppendEvent RPUSHes the JSON-encoded event onto the task's log.
func (s *Store) AppendEvent(ctx context.Context, taskID string, event taskcast.TaskEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.eventsKey(taskID), b).Err()
}

// GetEvents LRANGEs the full log and applies cursor precedence and limit client-side; Redis has
// no native "find by field" query, so this mirrors the source's own adapter-side cursor handling.
func (s *Store) GetEvents(ctx context.Context, taskID string, opts *taskcast.GetEventsOptions) ([]taskcast.TaskEvent, error) {
	raw, err := s.client.LRange(ctx, s.eventsKey(taskID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]taskcast.TaskEvent, 0, len(raw))
	for _, r := range raw {
		var e taskcast.TaskEvent
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

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

// NextIndex uses INCR, never LLEN, so a pre-allocated-but-not-yet-appended index is never reused
// by a concurrent caller; the returned value is 0-based.
func (s *Store) NextIndex(ctx context.Context, taskID string) (int64, error) {
	n, err := s.client.Incr(ctx, s.idxKey(taskID)).Result()
	if err != nil {
		return 0, err
	}
	return n - 1, nil
}

// SetTTL applies the TTL to the task, events, and idx keys, then fans out to every known series
// key plus the seriesIds set itself.
func (s *Store) SetTTL(ctx context.Context, taskID string, seconds int64) error {
	ttl := secondsToDuration(seconds)
	keys := []string{s.taskKey(taskID), s.eventsKey(taskID), s.idxKey(taskID)}
	for _, k := range keys {
		if err := s.client.Expire(ctx, k, ttl).Err(); err != nil {
			return err
		}
	}

	seriesIDs, err := s.client.SMembers(ctx, s.seriesIDsKey(taskID)).Result()
	if err != nil {
		return err
	}
	sort.Strings(seriesIDs) // deterministic ordering for tests/logging
	for _, sid := range seriesIDs {
		if err := s.client.Expire(ctx, s.seriesKey(taskID, sid), ttl).Err(); err != nil {
			return err
		}
	}
	return s.client.Expire(ctx, s.seriesIDsKey(taskID), ttl).Err()
}

// GetSeriesLatest returns the last stored event for (taskID, seriesID), or nil.
func (s *Store) GetSeriesLatest(ctx context.Context, taskID, seriesID string) (*taskcast.TaskEvent, error) {
	b, err := s.client.Get(ctx, s.seriesKey(taskID, seriesID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e taskcast.TaskEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// SetSeriesLatest upserts the series-latest key and registers the series id for TTL fan-out.
func (s *Store) SetSeriesLatest(ctx context.Context, taskID, seriesID string, event taskcast.TaskEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.seriesKey(taskID, seriesID), b, 0).Err(); err != nil {
		return err
	}
	return s.client.SAdd(ctx, s.seriesIDsKey(taskID), seriesID).Err()
}

// ReplaceLastSeriesEvent loads the current series-latest, scans the event list from the tail for
// a matching id, and LSETs it in place; if no previous entry exists, it appends instead.
func (s *Store) ReplaceLastSeriesEvent(ctx context.Context, taskID, seriesID string, event taskcast.TaskEvent) error {
	prev, err := s.GetSeriesLatest(ctx, taskID, seriesID)
	if err != nil {
		return err
	}
	if prev == nil {
		if err := s.AppendEvent(ctx, taskID, event); err != nil {
			return err
		}
		return s.SetSeriesLatest(ctx, taskID, seriesID, event)
	}

	raw, err := s.client.LRange(ctx, s.eventsKey(taskID), 0, -1).Result()
	if err != nil {
		return err
	}
	for i := len(raw) - 1; i >= 0; i-- {
		var e taskcast.TaskEvent
		if err := json.Unmarshal([]byte(raw[i]), &e); err != nil {
			return err
		}
		if e.ID == prev.ID {
			b, err := json.Marshal(event)
			if err != nil {
				return err
			}
			if err := s.client.LSet(ctx, s.eventsKey(taskID), int64(i), b).Err(); err != nil {
				return err
			}
			return s.SetSeriesLatest(ctx, taskID, seriesID, event)
		}
	}
	// Previous series-latest no longer present in the log (e.g. evicted); append instead.
	if err := s.AppendEvent(ctx, taskID, event); err != nil {
		return err
	}
	return s.SetSeriesLatest(ctx, taskID, seriesID, event)
}
