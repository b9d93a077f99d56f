package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"fitleague/internal/apperr"
)

// AppCredentials authenticate application-level calls such as push
// subscription management
type AppCredentials struct {
	ClientID     string
	ClientSecret string
}

func (a AppCredentials) query() url.Values {
	q := url.Values{}
	q.Set("client_id", a.ClientID)
	q.Set("client_secret", a.ClientSecret)
	return q
}

// ListSubscriptions returns the application's push subscriptions
func (c *Client) ListSubscriptions(ctx context.Context, creds AppCredentials) ([]Subscription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/push_subscriptions?"+creds.query().Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var subs []Subscription
	if err := json.NewDecoder(resp.Body).Decode(&subs); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUpstreamTransient, "decoding subscriptions")
	}
	return subs, nil
}

// CreateSubscription registers callbackURL. Strava verifies the callback
// synchronously with verifyToken before answering.
func (c *Client) CreateSubscription(ctx context.Context, creds AppCredentials, callbackURL, verifyToken string) (*Subscription, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"client_id", creds.ClientID},
		{"client_secret", creds.ClientSecret},
		{"callback_url", callbackURL},
		{"verify_token", verifyToken},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("writing %s: %w", f[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing form writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/push_subscriptions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sub Subscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUpstreamTransient, "decoding subscription")
	}
	sub.CallbackURL = callbackURL
	return &sub, nil
}

// DeleteSubscription removes a push subscription
func (c *Client) DeleteSubscription(ctx context.Context, creds AppCredentials, id int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/push_subscriptions/%d?%s", c.baseURL, id, creds.query().Encode()), nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
