package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pennyhq/penny/pkg/models"
)

// ErrConfirmationResolved is returned when a confirmation has already left
// the pending state. The first resolution wins; later replies and the
// timeout sweep must not overwrite it.
var ErrConfirmationResolved = fmt.Errorf("confirmation already resolved")

// CreateConfirmation inserts a new pending confirmation request.
func (db *DB) CreateConfirmation(c *models.Confirmation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Outcome == "" {
		c.Outcome = models.ConfirmationPending
	}

	_, err := db.Exec(`
		INSERT INTO confirmations (correlation_id, item_id, question, outcome, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.CorrelationID, c.ItemID, c.Question, string(c.Outcome),
		formatTime(c.ExpiresAt), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert confirmation: %w", err)
	}
	return nil
}

// GetConfirmation returns the confirmation with the given correlation id,
// or ErrNotFound.
func (db *DB) GetConfirmation(correlationID string) (*models.Confirmation, error) {
	row := db.QueryRow(`
		SELECT correlation_id, item_id, question, outcome, expires_at, created_at
		FROM confirmations WHERE correlation_id = ?
	`, correlationID)

	c, err := scanConfirmation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get confirmation: %w", err)
	}
	return c, nil
}

// ResolveConfirmation sets the outcome if and only if the confirmation is
// still pending. A resolved confirmation stays resolved: a late reply after
// the timeout sweep (or vice versa) returns ErrConfirmationResolved.
func (db *DB) ResolveConfirmation(correlationID string, outcome models.ConfirmationOutcome) error {
	result, err := db.Exec(`
		UPDATE confirmations SET outcome = ? WHERE correlation_id = ? AND outcome = 'pending'
	`, string(outcome), correlationID)
	if err != nil {
		return fmt.Errorf("resolve confirmation: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, getErr := db.GetConfirmation(correlationID); getErr != nil {
			return getErr
		}
		return ErrConfirmationResolved
	}
	return nil
}

// ExpiredConfirmations returns pending confirmations whose reply window
// closed before now, oldest first.
func (db *DB) ExpiredConfirmations(now time.Time) ([]models.Confirmation, error) {
	rows, err := db.Query(`
		SELECT correlation_id, item_id, question, outcome, expires_at, created_at
		FROM confirmations
		WHERE outcome = 'pending' AND expires_at < ?
		ORDER BY expires_at ASC
	`, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("expired confirmations: %w", err)
	}
	defer rows.Close()

	var confirmations []models.Confirmation
	for rows.Next() {
		c, err := scanConfirmation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan confirmation: %w", err)
		}
		confirmations = append(confirmations, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate confirmations: %w", err)
	}
	return confirmations, nil
}

func scanConfirmation(s scanner) (*models.Confirmation, error) {
	var c models.Confirmation
	var outcome string
	var expiresAt, createdAt string

	err := s.Scan(&c.CorrelationID, &c.ItemID, &c.Question, &outcome, &expiresAt, &createdAt)
	if err != nil {
		return nil, err
	}

	c.Outcome = models.ConfirmationOutcome(outcome)

	if c.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &c, nil
}
