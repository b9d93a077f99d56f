package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// sqliteTimestamp is the layout CURRENT_TIMESTAMP produces
const sqliteTimestamp = "2006-01-02 15:04:05"

// CreateClient inserts a new client and sets its ID
func (db *DB) CreateClient(ctx context.Context, c *Client) error {
	result, err := db.ExecContext(ctx, `
		INSERT INTO clients (name, slug, athlete_id_prefix)
		VALUES (?, ?, ?)
	`, c.Name, c.Slug, c.AthleteIDPrefix)
	if isUniqueViolation(err, "clients.slug") {
		return ErrSlugTaken
	}
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	c.CreatedAt = time.Now().UTC()
	return nil
}

// GetClient retrieves a client by ID
func (db *DB) GetClient(ctx context.Context, id int64) (*Client, error) {
	var c Client
	var createdAt string
	err := db.QueryRowContext(ctx, `
		SELECT id, name, slug, athlete_id_prefix, created_at
		FROM clients
		WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &c.Slug, &c.AthleteIDPrefix, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}

	if c.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	return &c, nil
}

// parseTimestamp accepts both RFC3339 and the CURRENT_TIMESTAMP layout
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(sqliteTimestamp, s, time.UTC)
}
