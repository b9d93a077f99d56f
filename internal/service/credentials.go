package service

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"fitleague/internal/apperr"
	"fitleague/internal/auth"
	"fitleague/internal/metrics"
	"fitleague/internal/store"
)

// Credentials owns the Strava credential envelope stored on each user.
// Refreshes for the same user are collapsed into one upstream call, and
// writes are compare-and-swap so a concurrent writer can never be
// overwritten with an older envelope.
type Credentials struct {
	db      *store.DB
	manager *auth.Manager
	metrics *metrics.Metrics
	log     *zap.Logger
	group   singleflight.Group
}

// NewCredentials creates a Credentials service
func NewCredentials(db *store.DB, manager *auth.Manager, m *metrics.Metrics, log *zap.Logger) *Credentials {
	return &Credentials{db: db, manager: manager, metrics: m, log: log}
}

// Connect exchanges an authorization code and stores the resulting
// envelope on the user, replacing any previous connection
func (c *Credentials) Connect(ctx context.Context, userID int64, code string) (*auth.Envelope, error) {
	if _, err := c.db.GetUser(ctx, userID); err != nil {
		return nil, storeErr(err)
	}

	env, err := c.manager.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	serialized, err := env.Marshal()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "encoding credentials")
	}

	for attempt := 0; attempt < MaxTokenWriteAttempts; attempt++ {
		user, err := c.db.GetUser(ctx, userID)
		if err != nil {
			return nil, storeErr(err)
		}

		err = c.db.UpdateStravaToken(ctx, userID, user.StravaToken, serialized, env.Athlete.ID)
		if errors.Is(err, store.ErrTokenConflict) {
			continue
		}
		if err != nil {
			return nil, storeErr(err)
		}

		c.log.Info("strava connected",
			zap.Int64("user_id", userID), zap.Int64("provider_athlete_id", env.Athlete.ID))
		return env, nil
	}
	return nil, apperr.New(apperr.CodeConflict, "credentials changed concurrently")
}

// Fresh returns a usable envelope for the user, refreshing it first when
// the stored access token has expired. Concurrent callers for the same user
// share one refresh.
func (c *Credentials) Fresh(ctx context.Context, userID int64) (*auth.Envelope, error) {
	v, err, _ := c.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		return c.fresh(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*auth.Envelope), nil
}

func (c *Credentials) fresh(ctx context.Context, userID int64) (*auth.Envelope, error) {
	for attempt := 0; attempt < MaxTokenWriteAttempts; attempt++ {
		user, err := c.db.GetUser(ctx, userID)
		if err != nil {
			return nil, storeErr(err)
		}
		if user.StravaToken == nil {
			return nil, apperr.New(apperr.CodeValidation, "strava is not connected")
		}

		env, err := auth.ParseEnvelope(*user.StravaToken)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeValidation, "stored strava credentials are unreadable, reconnect strava")
		}

		refreshed, changed, err := c.manager.EnsureFresh(ctx, env)
		if err != nil {
			c.metrics.TokenRefreshed("error")
			c.log.Warn("token refresh failed", zap.Int64("user_id", userID), zap.Error(err))
			return nil, err
		}
		if !changed {
			return env, nil
		}
		c.metrics.TokenRefreshed("ok")

		serialized, err := refreshed.Marshal()
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "encoding credentials")
		}

		err = c.db.UpdateStravaToken(ctx, userID, user.StravaToken, serialized, refreshed.Athlete.ID)
		if errors.Is(err, store.ErrTokenConflict) {
			// Another writer stored a newer envelope; use theirs
			c.log.Debug("credential write lost race, reloading", zap.Int64("user_id", userID))
			continue
		}
		if err != nil {
			return nil, storeErr(err)
		}

		c.log.Debug("access token refreshed",
			zap.Int64("user_id", userID), zap.Time("expires_at", refreshed.Expiry()))
		return refreshed, nil
	}
	return nil, apperr.New(apperr.CodeConflict, "credentials changed concurrently")
}

// Disconnect removes the user's envelope and provider link
func (c *Credentials) Disconnect(ctx context.Context, userID int64) error {
	if err := c.db.ClearStravaToken(ctx, userID); err != nil {
		return storeErr(err)
	}
	c.log.Info("strava disconnected", zap.Int64("user_id", userID))
	return nil
}

// Status reports whether the user has a stored envelope and, if so, the
// linked provider athlete
func (c *Credentials) Status(ctx context.Context, userID int64) (bool, int64, error) {
	user, err := c.db.GetUser(ctx, userID)
	if err != nil {
		return false, 0, storeErr(err)
	}
	if user.StravaToken == nil {
		return false, 0, nil
	}
	env, err := auth.ParseEnvelope(*user.StravaToken)
	if err != nil {
		return true, 0, nil
	}
	return true, env.Athlete.ID, nil
}
