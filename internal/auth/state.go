package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"fitleague/internal/apperr"
)

// StateTTL bounds how long a user has to complete the consent screen
const StateTTL = 10 * time.Minute

// stateClaims bind an OAuth round trip to the user who started it
type stateClaims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// StateSigner issues and checks the OAuth state parameter
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner creates a signer using HMAC key
func NewStateSigner(key []byte) *StateSigner {
	return &StateSigner{key: key, ttl: StateTTL, now: time.Now}
}

// Sign returns a state value for userID
func (s *StateSigner) Sign(userID int64) (string, error) {
	now := s.now().UTC()
	claims := &stateClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify returns the user id carried by a valid, unexpired state
func (s *StateSigner) Verify(state string) (int64, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.CodeValidation, "invalid oauth state")
	}
	if claims.UserID == 0 {
		return 0, apperr.New(apperr.CodeValidation, "invalid oauth state")
	}
	return claims.UserID, nil
}
