// Package cleanup implements the retention-rule matcher (matcher.go) and a background service
// that periodically applies it against the long-term store.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/weightwave/taskcast/pkg/taskcast"
)

// Service periodically scans long-term-stored tasks for cleanup-rule matches and deletes the
// events or tasks each matching rule targets. Only tasks that carry a CleanupConfig are evaluated;
// the service runs whether or not any such task exists. The matcher itself (matcher.go) is pure
// and has no dependency on this service.
type Service struct {
	store    taskcast.LongTermStore
	interval time.Duration
	nowFn    func() int64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService constructs a Service that sweeps store every interval.
func NewService(store taskcast.LongTermStore, interval time.Duration) *Service {
	return &Service{
		store:    store,
		interval: interval,
		nowFn:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Start launches the background sweep loop. Safe to call multiple times; later calls are no-ops.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started", "interval", s.interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	tasks, err := s.store.ListTasksForCleanup(ctx)
	if err != nil {
		slog.Error("cleanup: list tasks failed", "error", err)
		return
	}

	now := s.nowFn()
	var tasksDeleted, eventsDeleted int

	for _, task := range tasks {
		if task.Cleanup == nil {
			continue
		}
		for _, rule := range task.Cleanup.Rules {
			if !MatchesCleanupRule(task, rule, now) {
				continue
			}
			if rule.Target == taskcast.CleanupTargetEvents || rule.Target == taskcast.CleanupTargetAll {
				n := s.deleteMatchingEvents(ctx, task, rule)
				eventsDeleted += n
			}
			if rule.Target == taskcast.CleanupTargetTask || rule.Target == taskcast.CleanupTargetAll {
				if err := s.store.DeleteTask(ctx, task.ID); err != nil {
					slog.Error("cleanup: delete task failed", "task_id", task.ID, "error", err)
					continue
				}
				tasksDeleted++
			}
		}
	}

	if tasksDeleted > 0 || eventsDeleted > 0 {
		slog.Info("cleanup: sweep complete", "tasks_deleted", tasksDeleted, "events_deleted", eventsDeleted)
	}
}

func (s *Service) deleteMatchingEvents(ctx context.Context, task taskcast.Task, rule taskcast.CleanupRule) int {
	events, err := s.store.GetEvents(ctx, task.ID, nil)
	if err != nil {
		slog.Error("cleanup: get_events failed", "task_id", task.ID, "error", err)
		return 0
	}
	selected := FilterEventsForCleanup(events, rule.EventFilter, s.nowFn(), task.CompletedAt)
	if len(selected) == 0 {
		return 0
	}
	ids := make([]string, len(selected))
	for i, e := range selected {
		ids[i] = e.ID
	}
	if err := s.store.DeleteEvents(ctx, task.ID, ids); err != nil {
		slog.Error("cleanup: delete_events failed", "task_id", task.ID, "error", err)
		return 0
	}
	return len(ids)
}
