package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"fitleague/internal/apperr"
	"fitleague/internal/auth"
	"fitleague/internal/store"
)

// IdentityResolver maps a provider athlete id to the local user holding
// that athlete's credentials
type IdentityResolver struct {
	db  *store.DB
	log *zap.Logger
}

// NewIdentityResolver creates an IdentityResolver
func NewIdentityResolver(db *store.DB, log *zap.Logger) *IdentityResolver {
	return &IdentityResolver{db: db, log: log}
}

// ResolveByProviderAthleteID returns the owning user or a NOT_FOUND error.
//
// The provider athlete index answers most lookups. Users connected before
// the index existed are found by scanning stored envelopes in id order; the
// first match wins and is written back to the index. Envelopes that fail to
// parse are skipped.
func (r *IdentityResolver) ResolveByProviderAthleteID(ctx context.Context, providerAthleteID int64) (*store.User, error) {
	if providerAthleteID <= 0 {
		return nil, apperr.New(apperr.CodeNotFound, "no user for provider athlete")
	}

	user, err := r.db.GetUserByProviderAthleteID(ctx, providerAthleteID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, storeErr(err)
	}

	users, err := r.db.ListUsersWithStravaToken(ctx)
	if err != nil {
		return nil, storeErr(err)
	}

	for i := range users {
		u := &users[i]
		env, err := auth.ParseEnvelope(*u.StravaToken)
		if err != nil {
			r.log.Warn("skipping unreadable credential envelope",
				zap.Int64("user_id", u.ID), zap.Error(err))
			continue
		}
		if env.Athlete.ID != providerAthleteID {
			continue
		}

		if err := r.db.LinkProviderAthlete(ctx, providerAthleteID, u.ID); err != nil {
			r.log.Warn("backfilling provider athlete index failed",
				zap.Int64("user_id", u.ID), zap.Int64("provider_athlete_id", providerAthleteID), zap.Error(err))
		}
		return u, nil
	}

	return nil, apperr.Newf(apperr.CodeNotFound, "no user for provider athlete %d", providerAthleteID)
}
