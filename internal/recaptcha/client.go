// Package recaptcha is a thin client for the bot-verification endpoint.
package recaptcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultEndpoint = "https://www.google.com/recaptcha/api/siteverify"

// Client verifies reCAPTCHA responses. With an empty secret the client is
// disabled and verification is skipped entirely.
type Client struct {
	secret   string
	endpoint string
	http     *http.Client
}

// NewClient builds a verifier for the given secret.
func NewClient(secret string) *Client {
	return &Client{
		secret:   strings.TrimSpace(secret),
		endpoint: defaultEndpoint,
		http:     &http.Client{Timeout: 5 * time.Second},
	}
}

// Enabled reports whether a secret is configured.
func (c *Client) Enabled() bool {
	return c.secret != ""
}

// Verify posts the response token to the siteverify endpoint.
func (c *Client) Verify(ctx context.Context, response string) (bool, error) {
	if response == "" {
		return false, nil
	}
	form := url.Values{
		"secret":   {c.secret},
		"response": {response},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()
	var body struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode verify response: %w", err)
	}
	return body.Success, nil
}
