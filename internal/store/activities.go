package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const activityColumns = `id, user_id, type, date, distance, duration, title,
	description, proof_link, proof_image, external_id, external_source,
	elevation_gain, avg_heart_rate, created_at`

// InsertActivity writes a new activity unless one with the same
// (user_id, external_id) already exists. Activities without an external id
// are always inserted. The check and the write are a single statement.
func (db *DB) InsertActivity(ctx context.Context, a *Activity) (InsertOutcome, error) {
	result, err := db.ExecContext(ctx, `
		INSERT INTO activities (
			user_id, type, date, distance, duration, title, description,
			proof_link, proof_image, external_id, external_source,
			elevation_gain, avg_heart_rate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, external_id) DO NOTHING
	`,
		a.UserID, a.Type, a.Date.UTC().Format(time.RFC3339), a.Distance, a.Duration, a.Title,
		nullString(a.Description), nullString(a.ProofLink), nullString(a.ProofImage),
		nullString(a.ExternalID), nullString(a.ExternalSource),
		a.ElevationGain, a.AvgHeartRate,
	)
	if err != nil {
		return 0, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		return SkippedDuplicate, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	a.ID = id
	a.CreatedAt = time.Now().UTC()
	return Inserted, nil
}

// GetActivity retrieves an activity by ID
func (db *DB) GetActivity(ctx context.Context, id int64) (*Activity, error) {
	row := db.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	a, err := scanActivityInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrActivityNotFound
	}
	return a, err
}

// ListActivitiesByUser returns a user's activities, most recent first
func (db *DB) ListActivitiesByUser(ctx context.Context, userID int64) ([]Activity, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE user_id = ?
		ORDER BY date DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActivities(rows)
}

// ListActivities returns activities matching the filter in insertion order
func (db *DB) ListActivities(ctx context.Context, f ActivityFilter) ([]Activity, error) {
	query := `SELECT ` + prefixed("a.", activityColumns) + `
		FROM activities a
		JOIN users u ON u.id = a.user_id
		WHERE 1 = 1`
	var args []any
	if f.ClientID != 0 {
		query += ` AND u.client_id = ?`
		args = append(args, f.ClientID)
	}
	if f.UserID != 0 {
		query += ` AND a.user_id = ?`
		args = append(args, f.UserID)
	}
	if f.Type != "" {
		query += ` AND a.type = ?`
		args = append(args, f.Type)
	}
	query += ` ORDER BY a.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActivities(rows)
}

// CountActivities returns the total number of activities
func (db *DB) CountActivities(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activities").Scan(&count)
	return count, err
}

func scanActivityInto(s rowScanner) (*Activity, error) {
	var a Activity
	var date, createdAt string
	var description, proofLink, proofImage, externalID, externalSource sql.NullString
	var elevation, heartRate sql.NullFloat64

	err := s.Scan(
		&a.ID, &a.UserID, &a.Type, &date, &a.Distance, &a.Duration, &a.Title,
		&description, &proofLink, &proofImage, &externalID, &externalSource,
		&elevation, &heartRate, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if a.Date, err = time.Parse(time.RFC3339, date); err != nil {
		return nil, fmt.Errorf("parsing date %q: %w", date, err)
	}
	if a.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	a.Description = description.String
	a.ProofLink = proofLink.String
	a.ProofImage = proofImage.String
	a.ExternalID = externalID.String
	a.ExternalSource = externalSource.String
	if elevation.Valid {
		a.ElevationGain = &elevation.Float64
	}
	if heartRate.Valid {
		a.AvgHeartRate = &heartRate.Float64
	}

	return &a, nil
}

// scanActivities scans multiple activities from rows
func scanActivities(rows *sql.Rows) ([]Activity, error) {
	var activities []Activity
	for rows.Next() {
		a, err := scanActivityInto(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}
