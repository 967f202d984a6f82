package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pennyhq/penny/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = fmt.Errorf("not found")

// CreateItem inserts a new item.
func (db *DB) CreateItem(item *models.Item) error {
	payload, err := marshalPayload(item.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	_, err = db.Exec(`
		INSERT INTO items (id, text, source, category, confidence, payload, status, routed_to, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.Text, item.Source, string(item.Category), item.Confidence,
		payload, string(item.Status), item.RoutedTo, formatTime(item.CreatedAt), formatTime(item.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// GetItem returns the item with the given id, or ErrNotFound.
func (db *DB) GetItem(id string) (*models.Item, error) {
	row := db.QueryRow(`
		SELECT id, text, source, category, confidence, payload, status, routed_to, created_at, updated_at
		FROM items WHERE id = ?
	`, id)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems returns items newest first, optionally filtered by category,
// along with the total count for the filter.
func (db *DB) ListItems(category models.Category, limit, offset int) ([]models.Item, int, error) {
	if limit <= 0 {
		limit = 50
	}

	where := ""
	args := []any{}
	if category != "" {
		where = "WHERE category = ?"
		args = append(args, string(category))
	}

	var total int
	row := db.QueryRow("SELECT COUNT(*) FROM items "+where, args...)
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}

	rows, err := db.Query(`
		SELECT id, text, source, category, confidence, payload, status, routed_to, created_at, updated_at
		FROM items `+where+`
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate items: %w", err)
	}

	return items, total, nil
}

// FinalizeItem records an item's status and the action taken.
func (db *DB) FinalizeItem(id string, status models.ItemStatus, routedTo string) error {
	result, err := db.Exec(`
		UPDATE items SET status = ?, routed_to = ?, updated_at = ? WHERE id = ?
	`, string(status), routedTo, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("finalize item: %w", err)
	}
	return requireOneRow(result)
}

// ReclassifyItem replaces an item's category. Confidence is deliberately
// left untouched: a manual override states what the item is, not how sure
// the classifier was.
func (db *DB) ReclassifyItem(id string, category models.Category) error {
	result, err := db.Exec(`
		UPDATE items SET category = ?, updated_at = ? WHERE id = ?
	`, string(category), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("reclassify item: %w", err)
	}
	return requireOneRow(result)
}

// scanner abstracts *sql.Row and *sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*models.Item, error) {
	var item models.Item
	var category, status string
	var source, payload, routedTo sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&item.ID, &item.Text, &source, &category, &item.Confidence,
		&payload, &status, &routedTo, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	item.Source = source.String
	item.Category = models.Category(category)
	item.Status = models.ItemStatus(status)
	item.RoutedTo = routedTo.String

	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &item.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}

	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if item.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &item, nil
}

func marshalPayload(p models.Payload) (string, error) {
	if p == nil {
		return "", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
