package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrMissingCredentials is returned when credentials carry neither an access
// token nor a usable refresh setup.
var ErrMissingCredentials = errors.New("google credentials missing")

// Credentials are the stored OAuth credentials of one mailbox owner.
type Credentials struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	TokenURI     string   `json:"token_uri,omitempty"`
	ClientID     string   `json:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// LoadCredentialsFile reads credentials from a JSON file.
func LoadCredentialsFile(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %s: %w", path, err)
	}
	return &creds, nil
}

// Validate checks that the credentials can produce a token.
func (c *Credentials) Validate() error {
	if c == nil {
		return ErrMissingCredentials
	}
	if c.Token == "" && c.RefreshToken == "" {
		return fmt.Errorf("%w: token or refresh_token is required", ErrMissingCredentials)
	}
	if c.RefreshToken != "" && (c.ClientID == "" || c.ClientSecret == "") {
		return fmt.Errorf("%w: client_id and client_secret are required to refresh", ErrMissingCredentials)
	}
	return nil
}

// Config returns the oauth2 client configuration for these credentials.
// A custom token_uri replaces the default Google token endpoint.
func (c *Credentials) Config() *oauth2.Config {
	endpoint := google.Endpoint
	if c.TokenURI != "" {
		endpoint.TokenURL = c.TokenURI
	}

	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
}

// TokenSource returns a refreshing token source. Without a refresh token the
// access token is used as-is until it is rejected.
func (c *Credentials) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if c.RefreshToken == "" {
		return oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: c.Token,
			TokenType:   "Bearer",
		}), nil
	}

	token := &oauth2.Token{
		AccessToken:  c.Token,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
	}
	if c.Token == "" {
		// Force a refresh on first use
		token.Expiry = time.Unix(1, 0)
	}

	return c.Config().TokenSource(ctx, token), nil
}

// HTTPClient returns an HTTP client authenticated with these credentials.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors
func (c *Credentials) HTTPClient(ctx context.Context) (*http.Client, error) {
	ts, err := c.TokenSource(ctx)
	if err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: &oauth2.Transport{
			Source: ts,
			Base: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				ForceAttemptHTTP2: false,
			},
		},
	}, nil
}
