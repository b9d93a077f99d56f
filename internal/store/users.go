package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const userColumns = `id, client_id, athlete_id, email, name, gender, password_hash,
	active, strava_token, created_at, updated_at`

// UserUpdate carries a partial profile edit. Nil fields are left unchanged.
type UserUpdate struct {
	Name   *string
	Gender *string
}

// CreateUser inserts a new user and sets its ID
func (db *DB) CreateUser(ctx context.Context, u *User) error {
	result, err := db.ExecContext(ctx, `
		INSERT INTO users (client_id, athlete_id, email, name, gender, password_hash, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.ClientID, u.AthleteID, strings.ToLower(u.Email), u.Name, u.Gender, u.PasswordHash, boolToInt(u.Active))
	switch {
	case isUniqueViolation(err, "users.email"):
		return ErrEmailTaken
	case isUniqueViolation(err, "users.athlete_id"):
		return ErrAthleteIDTaken
	case err != nil:
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	u.ID = id
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// GetUser retrieves a user by internal ID
func (db *DB) GetUser(ctx context.Context, id int64) (*User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email (case-insensitive)
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
	return scanUser(row)
}

// GetUserByAthleteID retrieves a user by the human-shareable athlete id
func (db *DB) GetUserByAthleteID(ctx context.Context, athleteID string) (*User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE athlete_id = ?`, athleteID)
	return scanUser(row)
}

// ListUsers returns users matching the filter ordered by ID
func (db *DB) ListUsers(ctx context.Context, f UserFilter) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1 = 1`
	var args []any
	if f.ClientID != 0 {
		query += ` AND client_id = ?`
		args = append(args, f.ClientID)
	}
	if f.Gender != "" {
		query += ` AND gender = ?`
		args = append(args, f.Gender)
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanUsers(rows)
}

// ListUsersByClient returns a client's roster ordered by ID
func (db *DB) ListUsersByClient(ctx context.Context, clientID int64) ([]User, error) {
	return db.ListUsers(ctx, UserFilter{ClientID: clientID})
}

// UpdateUser applies a partial profile edit
func (db *DB) UpdateUser(ctx context.Context, id int64, upd UserUpdate) error {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	var args []any
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Gender != nil {
		sets = append(sets, "gender = ?")
		args = append(args, *upd.Gender)
	}
	args = append(args, id)

	result, err := db.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return requireRow(result, ErrUserNotFound)
}

// SetUserActive toggles the account status
func (db *DB) SetUserActive(ctx context.Context, id int64, active bool) error {
	result, err := db.ExecContext(ctx, `
		UPDATE users
		SET active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, boolToInt(active), id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrUserNotFound)
}

func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserInto(s rowScanner) (*User, error) {
	var u User
	var active int
	var token sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(
		&u.ID, &u.ClientID, &u.AthleteID, &u.Email, &u.Name, &u.Gender, &u.PasswordHash,
		&active, &token, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Active = active == 1
	if token.Valid {
		u.StravaToken = &token.String
	}
	if u.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	if u.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at %q: %w", updatedAt, err)
	}
	return &u, nil
}

func scanUser(row *sql.Row) (*User, error) {
	u, err := scanUserInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func scanUsers(rows *sql.Rows) ([]User, error) {
	var users []User
	for rows.Next() {
		u, err := scanUserInto(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// prefixed qualifies each column in a comma-separated list with p
func prefixed(p, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = p + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}
