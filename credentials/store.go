// Package credentials owns the bot's Twitch identity and OAuth token material.
// The backing store is a single JSON file read in full at startup and rewritten
// in full (atomic tmp+rename) whenever the token pair rotates. All other
// packages read snapshots; only the oauth refresher writes.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/onnwee/streambot/crypto"
)

// Credentials is the on-disk document. OAuthToken and RefreshToken are stored
// sealed when the store was built with a Sealer.
type Credentials struct {
	ClientID      string `json:"clientId"`
	ClientSecret  string `json:"clientSecret"`
	RefreshToken  string `json:"refreshToken"`
	BotUserID     string `json:"botUserId"`
	BotUsername   string `json:"botUsername"`
	OAuthToken    string `json:"oauthToken"`
	ChannelUserID string `json:"channelUserId"`
}

// Validate reports the first missing required field. Every field is required
// before any outbound call is attempted.
func (c Credentials) Validate() error {
	required := []struct{ name, v string }{
		{"clientId", c.ClientID},
		{"clientSecret", c.ClientSecret},
		{"refreshToken", c.RefreshToken},
		{"botUserId", c.BotUserID},
		{"botUsername", c.BotUsername},
		{"oauthToken", c.OAuthToken},
		{"channelUserId", c.ChannelUserID},
	}
	for _, f := range required {
		if f.v == "" {
			return fmt.Errorf("credentials: missing required field %s", f.name)
		}
	}
	return nil
}

// Store is a file-backed credential store safe for concurrent readers with a
// single writer (the token refresher).
type Store struct {
	path   string
	sealer crypto.Sealer // nil means plaintext storage

	mu    sync.RWMutex
	creds Credentials
}

// Open reads and decrypts the credentials file at path. A nil sealer stores
// token fields in plaintext.
func Open(path string, sealer crypto.Sealer) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	if sealer != nil {
		if creds.OAuthToken, err = crypto.OpenString(sealer, creds.OAuthToken); err != nil {
			return nil, fmt.Errorf("decrypt oauth token: %w", err)
		}
		if creds.RefreshToken, err = crypto.OpenString(sealer, creds.RefreshToken); err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return &Store{path: path, sealer: sealer, creds: creds}, nil
}

// Snapshot returns a copy of the current credentials.
func (s *Store) Snapshot() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// UpdateTokens replaces the bearer and refresh token pair and persists the full
// document. The old refresh token is single-use and discarded. On persist
// failure the in-memory update is rolled back so memory and disk stay in sync.
func (s *Store) UpdateTokens(oauthToken, refreshToken string) error {
	if oauthToken == "" || refreshToken == "" {
		return fmt.Errorf("credentials: refusing to store empty token pair")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.creds
	s.creds.OAuthToken = oauthToken
	s.creds.RefreshToken = refreshToken
	if err := s.persistLocked(); err != nil {
		s.creds = prev
		return err
	}
	return nil
}

func (s *Store) persistLocked() error {
	doc := s.creds
	if s.sealer != nil {
		var err error
		if doc.OAuthToken, err = crypto.SealString(s.sealer, doc.OAuthToken); err != nil {
			return fmt.Errorf("encrypt oauth token: %w", err)
		}
		if doc.RefreshToken, err = crypto.SealString(s.sealer, doc.RefreshToken); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	// Full rewrite via temp file + rename so a crash mid-write never leaves a
	// truncated credentials file.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*.json")
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close credentials: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace credentials file: %w", err)
	}
	return nil
}
