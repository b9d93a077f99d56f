package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"fitleague/internal/apperr"
)

// Manager performs the OAuth exchanges against Strava. It holds no
// per-user state.
type Manager struct {
	config     *oauth2.Config
	httpClient *http.Client
	now        func() time.Time
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithHTTPClient sets the client used for token calls
func WithHTTPClient(hc *http.Client) ManagerOption {
	return func(m *Manager) { m.httpClient = hc }
}

// WithClock overrides the time source used for expiry checks
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager for the given credentials
func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		config: NewOAuthConfig(cfg),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AuthorizeURL builds the provider consent URL. No network call is made.
func (m *Manager) AuthorizeURL(state string) string {
	return m.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("approval_prompt", "auto"),
	)
}

// Exchange trades an authorization code for a credential envelope
func (m *Manager) Exchange(ctx context.Context, code string) (*Envelope, error) {
	if code == "" {
		return nil, apperr.New(apperr.CodeValidation, "authorization code is required")
	}

	token, err := m.config.Exchange(m.context(ctx), code)
	if err != nil {
		return nil, classify(err, "exchanging code for token")
	}

	env := m.envelopeFrom(token)
	if env.Athlete.ID == 0 {
		return nil, apperr.New(apperr.CodeUpstreamAuth, "token response carried no athlete")
	}
	return env, nil
}

// EnsureFresh returns env unchanged if its access token is still valid at
// the manager's clock, otherwise performs exactly one refresh. The athlete
// identity is carried over. The bool reports whether a refresh happened.
func (m *Manager) EnsureFresh(ctx context.Context, env *Envelope) (*Envelope, bool, error) {
	if !env.Expired(m.now()) {
		return env, false, nil
	}

	// Only the refresh token is handed over so oauth2 always asks for a
	// new token; expiry is our decision, not oauth2's.
	src := m.config.TokenSource(m.context(ctx), &oauth2.Token{RefreshToken: env.RefreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, false, classify(err, "refreshing access token")
	}

	fresh := m.envelopeFrom(token)
	fresh.Athlete = env.Athlete
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = env.RefreshToken
	}
	return fresh, true, nil
}

func (m *Manager) context(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func (m *Manager) envelopeFrom(token *oauth2.Token) *Envelope {
	return &Envelope{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    extractExpiresAt(token),
		Athlete:      ExtractAthlete(token),
	}
}

// classify maps token endpoint failures: a rejected grant is UPSTREAM_AUTH,
// anything else (network, 5xx) UPSTREAM_TRANSIENT.
func classify(err error, msg string) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.Response != nil {
		switch rErr.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return apperr.Wrap(err, apperr.CodeUpstreamAuth, msg)
		}
	}
	return apperr.Wrap(err, apperr.CodeUpstreamTransient, msg)
}
