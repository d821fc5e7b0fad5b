package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/weightwave/taskcast/pkg/taskcast"
)

// SaveTask performs an idempotent UPSERT, overwriting only the mutable columns on conflict.
func (s *Store) SaveTask(ctx context.Context, task taskcast.Task) error {
	var errInfo []byte
	if task.Error != nil {
		b, err := json.Marshal(task.Error)
		if err != nil {
			return err
		}
		errInfo = b
	}
	var webhooks, cleanupCfg, authCfg []byte
	if task.Webhooks != nil {
		webhooks, _ = json.Marshal(task.Webhooks)
	}
	if task.Cleanup != nil {
		cleanupCfg, _ = json.Marshal(task.Cleanup)
	}
	if task.AuthConfig != nil {
		authCfg, _ = json.Marshal(task.AuthConfig)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, type, status, params, result, error, metadata, auth_config, webhooks, cleanup, created_at, updated_at, completed_at, ttl)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
	`, s.tasksTable())

	_, err := s.db.ExecContext(ctx, query,
		task.ID, nullIfEmpty(task.Type), task.Status,
		marshalOrNil(task.Params), marshalOrNil(task.Result), errInfo, marshalOrNil(task.Metadata),
		authCfg, webhooks, cleanupCfg,
		task.CreatedAt, task.UpdatedAt, task.CompletedAt, task.TTL,
	)
	return err
}

// GetTask returns the task, or nil if unknown.
func (s *Store) GetTask(ctx context.Context, taskID string) (*taskcast.Task, error) {
	query := fmt.Sprintf(`
		SELECT id, type, status, params, result, error, metadata, auth_config, webhooks, cleanup, created_at, updated_at, completed_at, ttl
		FROM %s WHERE id = $1
	`, s.tasksTable())

	row := s.db.QueryRowContext(ctx, query, taskID)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*taskcast.Task, error) {
	var t taskcast.Task
	var taskType sql.NullString
	var params, result, errInfo, metadata, authCfg, webhooks, cleanupCfg []byte

	err := row.Scan(
		&t.ID, &taskType, &t.Status,
		&params, &result, &errInfo, &metadata,
		&authCfg, &webhooks, &cleanupCfg,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt, &t.TTL,
	)
	if err != nil {
		return nil, err
	}
	t.Type = taskType.String
	t.Params = params
	t.Result = result
	t.Metadata = metadata
	if len(errInfo) > 0 {
		var ei taskcast.TaskErrorInfo
		if err := json.Unmarshal(errInfo, &ei); err != nil {
			return nil, err
		}
		t.Error = &ei
	}
	if len(authCfg) > 0 {
		var ac taskcast.TaskAuthConfig
		if err := json.Unmarshal(authCfg, &ac); err != nil {
			return nil, err
		}
		t.AuthConfig = &ac
	}
	if len(webhooks) > 0 {
		if err := json.Unmarshal(webhooks, &t.Webhooks); err != nil {
			return nil, err
		}
	}
	if len(cleanupCfg) > 0 {
		var cc taskcast.CleanupConfig
		if err := json.Unmarshal(cleanupCfg, &cc); err != nil {
			return nil, err
		}
		t.Cleanup = &cc
	}
	return &t, nil
}

// SaveEvent is an idempotent INSERT; a conflicting (task_id, idx) or id is a silent no-op.
func (s *Store) SaveEvent(ctx context.Context, event taskcast.TaskEvent) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, task_id, idx, timestamp, type, level, data, series_id, series_mode)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT DO NOTHING
	`, s.eventsTable())

	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.TaskID, event.Index, event.Timestamp, event.Type, event.Level,
		marshalOrNil(event.Data), nullIfEmpty(event.SeriesID), nullIfEmpty(string(event.SeriesMode)),
	)
	return err
}

// GetEvents returns a task's events in index order, applying since/limit. An unknown since.id is
// ignored entirely (all events returned), per the cursor contract.
func (s *Store) GetEvents(ctx context.Context, taskID string, opts *taskcast.GetEventsOptions) ([]taskcast.TaskEvent, error) {
	var clauses []string
	args := []any{taskID}
	argN := 2

	if opts != nil && opts.Since != nil {
		switch {
		case opts.Since.ID != "":
			idx, found, err := s.eventIndexByID(ctx, taskID, opts.Since.ID)
			if err != nil {
				return nil, err
			}
			if found {
				clauses = append(clauses, fmt.Sprintf(`idx > $%d`, argN))
				args = append(args, idx)
				argN++
			}
		case opts.Since.Index != nil:
			clauses = append(clauses, fmt.Sprintf(`idx > $%d`, argN))
			args = append(args, *opts.Since.Index)
			argN++
		case opts.Since.Timestamp != nil:
			clauses = append(clauses, fmt.Sprintf(`timestamp > $%d`, argN))
			args = append(args, *opts.Since.Timestamp)
			argN++
		}
	}

	query := fmt.Sprintf(`
		SELECT id, task_id, idx, timestamp, type, level, data, series_id, series_mode
		FROM %s WHERE task_id = $1`, s.eventsTable())
	if len(clauses) > 0 {
		query += " AND " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY idx ASC"
	if opts != nil && opts.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// eventIndexByID resolves since.id to its idx. found is false when the id does not exist for this
// task, in which case the caller ignores the cursor rather than filtering out every event.
func (s *Store) eventIndexByID(ctx context.Context, taskID, eventID string) (idx int64, found bool, err error) {
	query := fmt.Sprintf(`SELECT idx FROM %s WHERE id = $1 AND task_id = $2`, s.eventsTable())
	err = s.db.QueryRowContext(ctx, query, eventID, taskID).Scan(&idx)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return idx, true, nil
}

func scanEvents(rows *sql.Rows) ([]taskcast.TaskEvent, error) {
	var out []taskcast.TaskEvent
	for rows.Next() {
		var e taskcast.TaskEvent
		var data []byte
		var seriesID, seriesMode sql.NullString
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Index, &e.Timestamp, &e.Type, &e.Level, &data, &seriesID, &seriesMode); err != nil {
			return nil, err
		}
		e.Data = data
		e.SeriesID = seriesID.String
		e.SeriesMode = taskcast.SeriesMode(seriesMode.String)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListTasksForCleanup returns every terminal task that has a cleanup config; the cleanup service
// evaluates the rules itself.
func (s *Store) ListTasksForCleanup(ctx context.Context) ([]taskcast.Task, error) {
	query := fmt.Sprintf(`
		SELECT id, type, status, params, result, error, metadata, auth_config, webhooks, cleanup, created_at, updated_at, completed_at, ttl
		FROM %s WHERE status IN ('completed','failed','timeout','cancelled') AND cleanup IS NOT NULL
	`, s.tasksTable())

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []taskcast.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// DeleteTask removes a task and its events (events cascade via the foreign key).
func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.tasksTable()), taskID)
	return err
}

// DeleteEvents removes specific events by id.
func (s *Store) DeleteEvents(ctx context.Context, taskID string, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(eventIDs))
	args := make([]any, 0, len(eventIDs)+1)
	args = append(args, taskID)
	for i, id := range eventIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE task_id = $1 AND id IN (%s)`, s.eventsTable(), strings.Join(placeholders, ","))
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
