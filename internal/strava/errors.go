package strava

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"fitleague/internal/apperr"
)

// APIError is a non-2xx response from the Strava API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

// StatusCode extracts the upstream HTTP status from err, or 0
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// responseError drains resp and classifies it: rejected credentials are
// UPSTREAM_AUTH, missing resources NOT_FOUND, everything else transient.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.Wrap(apiErr, apperr.CodeUpstreamAuth, "strava rejected credentials")
	case http.StatusNotFound:
		return apperr.Wrap(apiErr, apperr.CodeNotFound, "strava resource not found")
	default:
		return apperr.Wrap(apiErr, apperr.CodeUpstreamTransient, "strava request failed")
	}
}
