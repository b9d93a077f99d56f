package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpdateStravaToken stores a new credential envelope for a user, but only if
// the currently stored envelope still equals expected (nil meaning "no
// envelope"). The provider athlete index is rewritten in the same
// transaction. Returns ErrTokenConflict if another writer got there first and
// ErrAthleteLinked if providerAthleteID belongs to a different user.
func (db *DB) UpdateStravaToken(ctx context.Context, userID int64, expected *string, envelope string, providerAthleteID int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if providerAthleteID != 0 {
		var owner int64
		err := tx.QueryRowContext(ctx, `
			SELECT user_id FROM provider_athletes WHERE provider_athlete_id = ?
		`, providerAthleteID).Scan(&owner)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking provider athlete owner: %w", err)
		}
		if err == nil && owner != userID {
			return ErrAthleteLinked
		}
	}

	var exp any
	if expected != nil {
		exp = *expected
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE users
		SET strava_token = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND strava_token IS ?
	`, envelope, userID, exp)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return ErrTokenConflict
	}

	if providerAthleteID != 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM provider_athletes WHERE user_id = ? AND provider_athlete_id != ?
		`, userID, providerAthleteID); err != nil {
			return fmt.Errorf("clearing stale provider link: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO provider_athletes (provider_athlete_id, user_id)
			VALUES (?, ?)
			ON CONFLICT(provider_athlete_id) DO NOTHING
		`, providerAthleteID, userID); err != nil {
			return fmt.Errorf("linking provider athlete: %w", err)
		}
	}

	return tx.Commit()
}

// ClearStravaToken removes a user's credential envelope and provider link
func (db *DB) ClearStravaToken(ctx context.Context, userID int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE users
		SET strava_token = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, userID)
	if err != nil {
		return err
	}
	if err := requireRow(result, ErrUserNotFound); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM provider_athletes WHERE user_id = ?`, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetUserByProviderAthleteID looks a user up through the provider athlete index
func (db *DB) GetUserByProviderAthleteID(ctx context.Context, providerAthleteID int64) (*User, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+prefixed("u.", userColumns)+`
		FROM provider_athletes p
		JOIN users u ON u.id = p.user_id
		WHERE p.provider_athlete_id = ?
	`, providerAthleteID)
	return scanUser(row)
}

// ListUsersWithStravaToken returns every user holding an envelope, ordered by ID
func (db *DB) ListUsersWithStravaToken(ctx context.Context) ([]User, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE strava_token IS NOT NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanUsers(rows)
}

// LinkProviderAthlete records an index entry if none exists for the provider
// athlete. Existing links are left untouched.
func (db *DB) LinkProviderAthlete(ctx context.Context, providerAthleteID, userID int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO provider_athletes (provider_athlete_id, user_id)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, providerAthleteID, userID)
	return err
}
