package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"fitleague/internal/apperr"
	"fitleague/internal/store"
	"fitleague/internal/strava"
)

// Subscriptions keeps exactly one Strava push subscription pointed at our
// callback URL
type Subscriptions struct {
	db          *store.DB
	client      *strava.Client
	creds       strava.AppCredentials
	callbackURL string
	verifyToken string
	log         *zap.Logger
}

// NewSubscriptions creates a Subscriptions manager
func NewSubscriptions(db *store.DB, client *strava.Client, creds strava.AppCredentials, callbackURL, verifyToken string, log *zap.Logger) *Subscriptions {
	return &Subscriptions{
		db:          db,
		client:      client,
		creds:       creds,
		callbackURL: callbackURL,
		verifyToken: verifyToken,
		log:         log,
	}
}

// Ensure reuses a subscription already registered for the callback URL,
// otherwise deletes stale ones and registers a new one. The current
// subscription is recorded in sync state.
//
// Strava calls the webhook GET handler during creation, so the HTTP server
// must already be listening.
func (s *Subscriptions) Ensure(ctx context.Context) (*strava.Subscription, error) {
	if s.callbackURL == "" {
		return nil, apperr.New(apperr.CodeValidation, "webhook callback url is not configured")
	}

	subs, err := s.client.ListSubscriptions(ctx, s.creds)
	if err != nil {
		return nil, err
	}

	for i := range subs {
		if subs[i].CallbackURL == s.callbackURL {
			s.log.Info("webhook subscription already registered", zap.Int64("subscription_id", subs[i].ID))
			return &subs[i], s.record(ctx, &subs[i])
		}
	}

	for _, sub := range subs {
		s.log.Info("deleting stale webhook subscription",
			zap.Int64("subscription_id", sub.ID), zap.String("callback_url", sub.CallbackURL))
		if err := s.client.DeleteSubscription(ctx, s.creds, sub.ID); err != nil {
			return nil, err
		}
	}

	sub, err := s.client.CreateSubscription(ctx, s.creds, s.callbackURL, s.verifyToken)
	if err != nil {
		return nil, err
	}
	s.log.Info("webhook subscription created", zap.Int64("subscription_id", sub.ID))
	return sub, s.record(ctx, sub)
}

// Current returns the last recorded subscription, or nil if none
func (s *Subscriptions) Current(ctx context.Context) (*strava.Subscription, error) {
	raw, err := s.db.GetSyncState(ctx, store.SyncKeySubscription)
	if err != nil {
		return nil, storeErr(err)
	}
	if raw == "" {
		return nil, nil
	}
	var sub strava.Subscription
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "decoding stored subscription")
	}
	return &sub, nil
}

// VerifyToken checks a handshake token against the configured one
func (s *Subscriptions) VerifyToken(token string) bool {
	return s.verifyToken != "" && token == s.verifyToken
}

func (s *Subscriptions) record(ctx context.Context, sub *strava.Subscription) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "encoding subscription")
	}
	if err := s.db.SetSyncState(ctx, store.SyncKeySubscription, string(raw)); err != nil {
		return storeErr(err)
	}
	return nil
}
