package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope is the per-user credential record stored on the user row
type Envelope struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresAt    int64           `json:"expires_at"` // unix seconds
	Athlete      EnvelopeAthlete `json:"athlete"`
}

// EnvelopeAthlete identifies the provider account the envelope belongs to
type EnvelopeAthlete struct {
	ID        int64  `json:"id"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
}

// ErrMalformedEnvelope is returned for stored envelopes that cannot be used
var ErrMalformedEnvelope = errors.New("malformed credential envelope")

// ParseEnvelope decodes a stored envelope
func ParseEnvelope(s string) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if e.RefreshToken == "" {
		return nil, fmt.Errorf("%w: missing refresh token", ErrMalformedEnvelope)
	}
	return &e, nil
}

// Marshal encodes the envelope for storage
func (e *Envelope) Marshal() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Expired reports whether the access token is no longer usable at now
func (e *Envelope) Expired(now time.Time) bool {
	return e.ExpiresAt <= now.Unix()
}

// Expiry returns ExpiresAt as a time
func (e *Envelope) Expiry() time.Time {
	return time.Unix(e.ExpiresAt, 0)
}
