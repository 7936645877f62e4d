// Package twitchapi contains minimal helpers to interact with the Twitch OAuth
// and Helix APIs: token validation and refresh, EventSub subscription creation,
// and chat message sending with the bot's user token.
package twitchapi

import (
	"net/http"
	"time"

	"github.com/onnwee/streambot/credentials"
)

const (
	defaultAuthURL  = "https://id.twitch.tv"
	defaultHelixURL = "https://api.twitch.tv/helix"

	requestTimeout = 15 * time.Second
)

// CredentialSource yields the current credential snapshot. Satisfied by
// *credentials.Store.
type CredentialSource interface {
	Snapshot() credentials.Credentials
}

// Client issues authenticated Twitch API calls. Zero-value URL fields fall back
// to the production endpoints; tests point them at httptest servers.
type Client struct {
	Creds      CredentialSource
	HTTPClient *http.Client
	AuthURL    string
	HelixURL   string
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: requestTimeout}
}

func (c *Client) authURL() string {
	if c.AuthURL != "" {
		return c.AuthURL
	}
	return defaultAuthURL
}

func (c *Client) helixURL() string {
	if c.HelixURL != "" {
		return c.HelixURL
	}
	return defaultHelixURL
}

func (c *Client) setHelixHeaders(req *http.Request) {
	creds := c.Creds.Snapshot()
	req.Header.Set("Authorization", "Bearer "+creds.OAuthToken)
	req.Header.Set("Client-Id", creds.ClientID)
}
