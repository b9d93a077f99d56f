package service

import (
	"errors"

	"fitleague/internal/apperr"
	"fitleague/internal/store"
)

// storeErr translates store sentinels into application errors
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrUserNotFound):
		return apperr.Wrap(err, apperr.CodeNotFound, "user not found")
	case errors.Is(err, store.ErrClientNotFound):
		return apperr.Wrap(err, apperr.CodeNotFound, "client not found")
	case errors.Is(err, store.ErrActivityNotFound):
		return apperr.Wrap(err, apperr.CodeNotFound, "activity not found")
	case errors.Is(err, store.ErrEmailTaken):
		return apperr.Wrap(err, apperr.CodeConflict, "email already registered")
	case errors.Is(err, store.ErrSlugTaken):
		return apperr.Wrap(err, apperr.CodeConflict, "client slug already in use")
	case errors.Is(err, store.ErrAthleteLinked):
		return apperr.Wrap(err, apperr.CodeConflict, "strava athlete already linked to another user")
	case errors.Is(err, store.ErrTokenConflict):
		return apperr.Wrap(err, apperr.CodeConflict, "credentials changed concurrently")
	default:
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperr.Wrap(err, apperr.CodeInternal, "storage failure")
	}
}
