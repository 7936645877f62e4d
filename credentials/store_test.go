package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/onnwee/streambot/crypto"
)

func writeTestFile(t *testing.T, creds Credentials) string {
	t.Helper()
	raw, err := json.Marshal(creds)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func fullCreds() Credentials {
	return Credentials{
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		RefreshToken:  "refresh-1",
		BotUserID:     "100",
		BotUsername:   "streambot",
		OAuthToken:    "oauth-1",
		ChannelUserID: "200",
	}
}

func TestOpenAndSnapshot(t *testing.T) {
	path := writeTestFile(t, fullCreds())
	store, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got := store.Snapshot()
	if got != fullCreds() {
		t.Errorf("Snapshot = %+v, want %+v", got, fullCreds())
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.json"), nil); err == nil {
		t.Error("Open should fail on missing file")
	}
}

func TestOpenMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(path, nil); err == nil {
		t.Error("Open should fail on malformed JSON")
	}
}

func TestValidate(t *testing.T) {
	if err := fullCreds().Validate(); err != nil {
		t.Errorf("full credentials should validate, got %v", err)
	}
	c := fullCreds()
	c.ChannelUserID = ""
	err := c.Validate()
	if err == nil {
		t.Fatal("Validate should fail with missing channelUserId")
	}
	if !strings.Contains(err.Error(), "channelUserId") {
		t.Errorf("error should name the missing field, got %v", err)
	}
}

func TestUpdateTokensPersistsFullRewrite(t *testing.T) {
	path := writeTestFile(t, fullCreds())
	store, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.UpdateTokens("oauth-2", "refresh-2"); err != nil {
		t.Fatalf("UpdateTokens: %v", err)
	}

	got := store.Snapshot()
	if got.OAuthToken != "oauth-2" || got.RefreshToken != "refresh-2" {
		t.Errorf("in-memory tokens = (%s, %s), want (oauth-2, refresh-2)", got.OAuthToken, got.RefreshToken)
	}
	// Unrelated identity fields survive the rewrite.
	if got.BotUserID != "100" || got.ClientSecret != "client-secret" {
		t.Errorf("identity fields mutated: %+v", got)
	}

	reloaded, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if r := reloaded.Snapshot(); r != got {
		t.Errorf("reloaded = %+v, want %+v", r, got)
	}
}

func TestUpdateTokensRejectsEmptyPair(t *testing.T) {
	path := writeTestFile(t, fullCreds())
	store, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.UpdateTokens("", "refresh-2"); err == nil {
		t.Error("UpdateTokens should reject empty oauth token")
	}
	if got := store.Snapshot(); got.RefreshToken != "refresh-1" {
		t.Errorf("store mutated after rejected update: %+v", got)
	}
}

func TestSealedRoundTrip(t *testing.T) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("rand: %v", err)
	}
	sealer, err := crypto.NewAESSealer(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("NewAESSealer: %v", err)
	}

	// Seed a file the way the store itself writes it: seal token fields first.
	seed := fullCreds()
	if seed.OAuthToken, err = crypto.SealString(sealer, seed.OAuthToken); err != nil {
		t.Fatalf("seal: %v", err)
	}
	if seed.RefreshToken, err = crypto.SealString(sealer, seed.RefreshToken); err != nil {
		t.Fatalf("seal: %v", err)
	}
	path := writeTestFile(t, seed)

	store, err := Open(path, sealer)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := store.Snapshot(); got.OAuthToken != "oauth-1" || got.RefreshToken != "refresh-1" {
		t.Errorf("decrypted snapshot = %+v", got)
	}

	if err := store.UpdateTokens("oauth-2", "refresh-2"); err != nil {
		t.Fatalf("UpdateTokens: %v", err)
	}
	// On disk the rotated tokens must not appear in plaintext.
	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(onDisk), "oauth-2") || strings.Contains(string(onDisk), "refresh-2") {
		t.Error("rotated tokens stored in plaintext despite sealer")
	}

	reloaded, err := Open(path, sealer)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reloaded.Snapshot(); got.OAuthToken != "oauth-2" || got.RefreshToken != "refresh-2" {
		t.Errorf("reloaded sealed tokens = (%s, %s)", got.OAuthToken, got.RefreshToken)
	}
}
