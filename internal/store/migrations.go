package store

import "database/sql"

// migrate runs all database migrations
func migrate(db *sql.DB) error {
	migrations := []string{
		// Tenants
		`CREATE TABLE IF NOT EXISTS clients (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			athlete_id_prefix TEXT NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,

		// Athletes. strava_token holds the serialized credential envelope.
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			client_id INTEGER NOT NULL,
			athlete_id TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			gender TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			strava_token TEXT,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (client_id) REFERENCES clients(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_users_client ON users(client_id)`,
		`CREATE INDEX IF NOT EXISTS idx_users_gender ON users(gender)`,

		// provider athlete id -> user, written together with strava_token
		`CREATE TABLE IF NOT EXISTS provider_athletes (
			provider_athlete_id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL UNIQUE,
			linked_at TEXT DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		// Activities. (user_id, external_id) is the duplicate guard for imports;
		// NULL external ids never conflict.
		`CREATE TABLE IF NOT EXISTS activities (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			date TEXT NOT NULL,
			distance REAL NOT NULL,
			duration INTEGER NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			proof_link TEXT,
			proof_image TEXT,
			external_id TEXT,
			external_source TEXT,
			elevation_gain REAL,
			avg_heart_rate REAL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, external_id),
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_activities_user ON activities(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(type)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_date ON activities(date)`,

		// Sync State (key-value store for sync markers and webhook subscription)
		`CREATE TABLE IF NOT EXISTS sync_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}

	return nil
}
