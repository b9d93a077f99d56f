package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fitleague/internal/apperr"
	"fitleague/internal/strava"
)

const callbackURL = "https://league.example.com/webhooks/strava"

func newTestSubscriptions(f *fixture) *Subscriptions {
	return NewSubscriptions(f.db, f.client, strava.AppCredentials{ClientID: "cid", ClientSecret: "secret"},
		callbackURL, "verify-me", zap.NewNop())
}

func TestEnsure_CreatesAndRecords(t *testing.T) {
	f := newFixture(t)
	subs := newTestSubscriptions(f)
	ctx := context.Background()

	sub, err := subs.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, callbackURL, sub.CallbackURL)

	current, err := subs.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, sub.ID, current.ID)

	// Second call reuses the registration
	again, err := subs.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)
	assert.Len(t, f.fake.subs, 1)
}

func TestEnsure_ReplacesStaleSubscription(t *testing.T) {
	f := newFixture(t)
	f.fake.subs = []strava.Subscription{{ID: 7, CallbackURL: "https://old.example.com/hook"}}
	subs := newTestSubscriptions(f)

	sub, err := subs.Ensure(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, int64(7), sub.ID)
	assert.Equal(t, []int64{7}, f.fake.deletedSubs)
	require.Len(t, f.fake.subs, 1)
	assert.Equal(t, callbackURL, f.fake.subs[0].CallbackURL)
}

func TestEnsure_RequiresCallback(t *testing.T) {
	f := newFixture(t)
	subs := NewSubscriptions(f.db, f.client, strava.AppCredentials{}, "", "", zap.NewNop())

	_, err := subs.Ensure(context.Background())
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	current, err := subs.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestVerifyToken(t *testing.T) {
	f := newFixture(t)
	subs := newTestSubscriptions(f)

	assert.True(t, subs.VerifyToken("verify-me"))
	assert.False(t, subs.VerifyToken("nope"))
	assert.False(t, NewSubscriptions(f.db, f.client, strava.AppCredentials{}, "", "", zap.NewNop()).VerifyToken(""))
}
