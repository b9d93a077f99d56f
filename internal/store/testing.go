package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
)

var fixtureSeq atomic.Int64

// NewTestDB opens an in-memory database that is closed when the test ends.
// This is only intended for use in tests.
func NewTestDB(tb testing.TB) *DB {
	tb.Helper()

	db, err := OpenInMemory()
	if err != nil {
		tb.Fatalf("failed to open test database: %v", err)
	}
	tb.Cleanup(func() { db.Close() })
	return db
}

// SeedClient inserts a client with a unique slug
func SeedClient(tb testing.TB, db *DB, prefix string) *Client {
	tb.Helper()

	n := fixtureSeq.Add(1)
	c := &Client{
		Name:            fmt.Sprintf("Client %d", n),
		Slug:            fmt.Sprintf("client-%d", n),
		AthleteIDPrefix: prefix,
	}
	if err := db.CreateClient(context.Background(), c); err != nil {
		tb.Fatalf("failed to seed client: %v", err)
	}
	return c
}

// SeedUser inserts an active user under the client
func SeedUser(tb testing.TB, db *DB, clientID int64, gender string) *User {
	tb.Helper()

	n := fixtureSeq.Add(1)
	u := &User{
		ClientID:     clientID,
		AthleteID:    fmt.Sprintf("TST%06d", n),
		Email:        fmt.Sprintf("athlete%d@example.com", n),
		Name:         fmt.Sprintf("Athlete %d", n),
		Gender:       gender,
		PasswordHash: "x",
		Active:       true,
	}
	if err := db.CreateUser(context.Background(), u); err != nil {
		tb.Fatalf("failed to seed user: %v", err)
	}
	return u
}
