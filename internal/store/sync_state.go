package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Sync state keys
const (
	SyncKeySubscription = "webhook_subscription"
	syncKeyLastSyncFmt  = "last_sync:%d"
)

// LastSyncKey returns the sync_state key holding a user's import marker
func LastSyncKey(userID int64) string {
	return fmt.Sprintf(syncKeyLastSyncFmt, userID)
}

// GetSyncState retrieves a sync state value by key
// Returns empty string if key doesn't exist
func (db *DB) GetSyncState(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `
		SELECT value FROM sync_state WHERE key = ?
	`, key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetSyncState sets a sync state value
func (db *DB) SetSyncState(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// DeleteSyncState removes a key. Missing keys are not an error.
func (db *DB) DeleteSyncState(ctx context.Context, key string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM sync_state WHERE key = ?`, key)
	return err
}

// GetLastSync returns the user's last import marker, or the zero time
func (db *DB) GetLastSync(ctx context.Context, userID int64) (time.Time, error) {
	v, err := db.GetSyncState(ctx, LastSyncKey(userID))
	if err != nil || v == "" {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, v)
}

// SetLastSync records the user's import marker
func (db *DB) SetLastSync(ctx context.Context, userID int64, t time.Time) error {
	return db.SetSyncState(ctx, LastSyncKey(userID), t.UTC().Format(time.RFC3339))
}
