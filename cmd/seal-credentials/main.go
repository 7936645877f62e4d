// Package main provides a CLI tool to migrate a plaintext credentials file to
// sealed token storage.
//
// The bot reads its credentials file with the sealer configured via
// ENCRYPTION_KEY; this tool performs the one-time conversion of an existing
// plaintext file so the two token fields (oauthToken, refreshToken) are stored
// AES-256-GCM sealed. Identity fields stay readable.
//
// Usage:
//   seal-credentials [--dry-run] [--file PATH]
//
// Flags:
//   --dry-run: Show what would be sealed without rewriting the file
//   --file:    Credentials file path (default: $CREDENTIALS_FILE or credentials.json)
//
// Environment Variables:
//   ENCRYPTION_KEY: Base64-encoded 32-byte encryption key (required)
//
// Example:
//   export ENCRYPTION_KEY="$(openssl rand -base64 32)"
//   ./seal-credentials --dry-run --file credentials.json
//   ./seal-credentials --file credentials.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/onnwee/streambot/credentials"
	"github.com/onnwee/streambot/crypto"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be sealed without rewriting the file")
	file := flag.String("file", "", "Credentials file path (default: $CREDENTIALS_FILE or credentials.json)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	path := *file
	if path == "" {
		path = os.Getenv("CREDENTIALS_FILE")
	}
	if path == "" {
		path = "credentials.json"
	}

	key := os.Getenv("ENCRYPTION_KEY")
	if key == "" {
		slog.Error("ENCRYPTION_KEY environment variable is required")
		os.Exit(1)
	}
	sealer, err := crypto.NewAESSealer(key)
	if err != nil {
		slog.Error("failed to initialize sealer", slog.Any("err", err))
		os.Exit(1)
	}

	if err := sealFile(path, sealer, *dryRun); err != nil {
		slog.Error("seal failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("seal completed", slog.String("file", path), slog.Bool("dry_run", *dryRun))
}

// sealFile reads a plaintext credentials file, seals the token fields, and
// atomically rewrites it. The file is verified to be plaintext first: sealing
// an already-sealed file would double-encrypt the tokens.
func sealFile(path string, sealer crypto.Sealer, dryRun bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read credentials file: %w", err)
	}
	var creds credentials.Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return fmt.Errorf("parse credentials file: %w", err)
	}

	if _, err := crypto.OpenString(sealer, creds.OAuthToken); err == nil && creds.OAuthToken != "" {
		return fmt.Errorf("oauthToken already sealed with this key, refusing to seal twice")
	}

	slog.Info("sealing token fields",
		slog.Bool("oauth_token_present", creds.OAuthToken != ""),
		slog.Bool("refresh_token_present", creds.RefreshToken != ""))
	if dryRun {
		return nil
	}

	if creds.OAuthToken, err = crypto.SealString(sealer, creds.OAuthToken); err != nil {
		return fmt.Errorf("seal oauth token: %w", err)
	}
	if creds.RefreshToken, err = crypto.SealString(sealer, creds.RefreshToken); err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}

	out, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".credentials-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(out, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write sealed credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close sealed credentials: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod sealed credentials: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace credentials file: %w", err)
	}
	return nil
}
