package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/streambot/credentials"
	"github.com/onnwee/streambot/crypto"
)

func testSealer(t *testing.T) crypto.Sealer {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	sealer, err := crypto.NewAESSealer(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	return sealer
}

func writePlaintextFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	raw, err := json.Marshal(credentials.Credentials{
		ClientID:      "cid",
		ClientSecret:  "csecret",
		RefreshToken:  "plain-refresh",
		BotUserID:     "100",
		BotUsername:   "streambot",
		OAuthToken:    "plain-oauth",
		ChannelUserID: "200",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func TestSealFileRoundTrip(t *testing.T) {
	sealer := testSealer(t)
	path := writePlaintextFile(t)

	require.NoError(t, sealFile(path, sealer, false))

	// On-disk tokens must no longer be plaintext.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk credentials.Credentials
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.NotEqual(t, "plain-oauth", onDisk.OAuthToken)
	assert.NotEqual(t, "plain-refresh", onDisk.RefreshToken)
	assert.Equal(t, "cid", onDisk.ClientID, "identity fields stay readable")

	// The store must open the sealed file back to plaintext.
	store, err := credentials.Open(path, sealer)
	require.NoError(t, err)
	snap := store.Snapshot()
	assert.Equal(t, "plain-oauth", snap.OAuthToken)
	assert.Equal(t, "plain-refresh", snap.RefreshToken)
}

func TestSealFileDryRunLeavesFileUntouched(t *testing.T) {
	sealer := testSealer(t)
	path := writePlaintextFile(t)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, sealFile(path, sealer, true))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSealFileRefusesDoubleSeal(t *testing.T) {
	sealer := testSealer(t)
	path := writePlaintextFile(t)

	require.NoError(t, sealFile(path, sealer, false))
	assert.Error(t, sealFile(path, sealer, false))
}
