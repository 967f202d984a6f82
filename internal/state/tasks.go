package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pennyhq/penny/pkg/models"
)

// ErrStaleTask is returned when a compare-and-set transition loses the race:
// the stored version no longer matches the caller's snapshot.
var ErrStaleTask = fmt.Errorf("task version is stale")

// CreateTask inserts a new background task in its initial state.
func (db *DB) CreateTask(t *models.BackgroundTask) error {
	results, err := marshalResults(t.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err = db.Exec(`
		INSERT INTO background_tasks (id, item_id, state, results, confidence, poll_count, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ItemID, string(t.State), results, t.Confidence, t.PollCount, t.Version,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask returns the task with the given id, or ErrNotFound.
func (db *DB) GetTask(id string) (*models.BackgroundTask, error) {
	row := db.QueryRow(taskSelect+" WHERE id = ?", id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ActiveTaskForItem returns the non-terminal task for an item, or nil when
// none exists. The router calls this before enqueueing so at most one
// active task exists per item.
func (db *DB) ActiveTaskForItem(itemID string) (*models.BackgroundTask, error) {
	row := db.QueryRow(taskSelect+`
		WHERE item_id = ? AND state NOT IN ('delivered', 'expired')
		ORDER BY created_at DESC LIMIT 1
	`, itemID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active task for item: %w", err)
	}
	return t, nil
}

// DueTasks returns queued tasks oldest first, up to limit.
func (db *DB) DueTasks(limit int) ([]models.BackgroundTask, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.Query(taskSelect+`
		WHERE state = 'queued'
		ORDER BY updated_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.BackgroundTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// TransitionTask applies t's current fields under a compare-and-set guard
// on the version column. The row is updated only when the stored version
// equals expectVersion; otherwise ErrStaleTask is returned and the caller
// must re-read. On success t.Version is bumped to match the store.
func (db *DB) TransitionTask(t *models.BackgroundTask, expectVersion int) error {
	results, err := marshalResults(t.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	t.UpdatedAt = time.Now()

	result, err := db.Exec(`
		UPDATE background_tasks
		SET state = ?, results = ?, confidence = ?, poll_count = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, string(t.State), results, t.Confidence, t.PollCount, formatTime(t.UpdatedAt),
		t.ID, expectVersion)
	if err != nil {
		return fmt.Errorf("transition task: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Either the task is gone or another cycle claimed it first.
		if _, getErr := db.GetTask(t.ID); getErr != nil {
			return getErr
		}
		return ErrStaleTask
	}

	t.Version = expectVersion + 1
	return nil
}

// TaskCounts returns the number of tasks in each state.
func (db *DB) TaskCounts() (map[models.TaskState]int, error) {
	rows, err := db.Query(`SELECT state, COUNT(*) FROM background_tasks GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("task counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.TaskState]int)
	for rows.Next() {
		var taskState string
		var n int
		if err := rows.Scan(&taskState, &n); err != nil {
			return nil, fmt.Errorf("scan task count: %w", err)
		}
		counts[models.TaskState(taskState)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task counts: %w", err)
	}
	return counts, nil
}

const taskSelect = `
	SELECT id, item_id, state, results, confidence, poll_count, version, created_at, updated_at
	FROM background_tasks`

func scanTask(s scanner) (*models.BackgroundTask, error) {
	var t models.BackgroundTask
	var taskState string
	var results sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&t.ID, &t.ItemID, &taskState, &results, &t.Confidence,
		&t.PollCount, &t.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.State = models.TaskState(taskState)

	if results.Valid && results.String != "" {
		if err := json.Unmarshal([]byte(results.String), &t.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
	}

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &t, nil
}

func marshalResults(results []models.ProbeResult) (string, error) {
	if len(results) == 0 {
		return "", nil
	}
	data, err := json.Marshal(results)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
