package auth

import (
	"golang.org/x/oauth2"
)

const (
	// Strava OAuth endpoints
	AuthURL  = "https://www.strava.com/oauth/authorize"
	TokenURL = "https://www.strava.com/oauth/token"
)

// Scopes required for our app (Strava uses comma-separated scopes)
var Scopes = []string{
	"read,activity:read_all",
}

// Config holds the OAuth client credentials
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // e.g., "https://league.example.com/strava/callback"
	AuthURL      string // defaults to AuthURL
	TokenURL     string // defaults to TokenURL
}

// NewOAuthConfig creates an oauth2.Config from our Config. Credentials are
// sent in the request body so each exchange or refresh is a single call.
func NewOAuthConfig(cfg Config) *oauth2.Config {
	authURL, tokenURL := cfg.AuthURL, cfg.TokenURL
	if authURL == "" {
		authURL = AuthURL
	}
	if tokenURL == "" {
		tokenURL = TokenURL
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: cfg.RedirectURL,
		Scopes:      Scopes,
	}
}

// ExtractAthlete extracts the athlete summary from the token extras
// Strava includes athlete info in the token response
func ExtractAthlete(token *oauth2.Token) EnvelopeAthlete {
	var a EnvelopeAthlete
	athlete, ok := token.Extra("athlete").(map[string]interface{})
	if !ok {
		return a
	}
	if id, ok := athlete["id"].(float64); ok {
		a.ID = int64(id)
	}
	a.Firstname, _ = athlete["firstname"].(string)
	a.Lastname, _ = athlete["lastname"].(string)
	return a
}

// extractExpiresAt prefers Strava's absolute expires_at over the relative
// expiry oauth2 derives from expires_in
func extractExpiresAt(token *oauth2.Token) int64 {
	if v, ok := token.Extra("expires_at").(float64); ok && v > 0 {
		return int64(v)
	}
	if !token.Expiry.IsZero() {
		return token.Expiry.Unix()
	}
	return 0
}
