// Package oauth manages the bot credential lifecycle: an eager validation at
// startup (the only path allowed to abort the process) and a recurring,
// advisory refresh that rotates the bearer/refresh token pair and persists it
// through the credentials store. Refresh failures are logged, never fatal.
package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onnwee/streambot/credentials"
	"github.com/onnwee/streambot/telemetry"
	"github.com/onnwee/streambot/twitchapi"
)

const defaultInterval = 3 * time.Hour

// tokenAPI is the subset of twitchapi.Client the refresher uses.
type tokenAPI interface {
	ValidateToken(ctx context.Context) error
	RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*twitchapi.RefreshResult, error)
}

// Refresher drives the credential lifecycle against a credentials.Store.
type Refresher struct {
	Store    *credentials.Store
	API      tokenAPI
	Interval time.Duration
	Clock    clockwork.Clock
}

func (r *Refresher) clock() clockwork.Clock {
	if r.Clock != nil {
		return r.Clock
	}
	return clockwork.NewRealClock()
}

func (r *Refresher) interval() time.Duration {
	if r.Interval > 0 {
		return r.Interval
	}
	return defaultInterval
}

// ValidateNow checks the current bearer token against the provider. A failure
// here means the session cannot open; the caller decides whether to abort.
func (r *Refresher) ValidateNow(ctx context.Context) error {
	if err := r.Store.Snapshot().Validate(); err != nil {
		return err
	}
	if err := r.API.ValidateToken(ctx); err != nil {
		return fmt.Errorf("token validation: %w", err)
	}
	return nil
}

// RefreshIfPossible exchanges the refresh token for a new pair and persists it.
// When client id, client secret, or refresh token is missing it skips without
// any HTTP call. Every failure is logged and swallowed: refresh is advisory
// and must never take down the host process.
func (r *Refresher) RefreshIfPossible(ctx context.Context) {
	creds := r.Store.Snapshot()
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.RefreshToken == "" {
		slog.Info("token refresh skipped: incomplete credentials")
		return
	}
	res, err := r.API.RefreshToken(ctx, creds.ClientID, creds.ClientSecret, creds.RefreshToken)
	if err != nil {
		telemetry.Count(telemetry.TokenRefreshErrors)
		slog.Warn("token refresh failed", slog.Any("err", err))
		return
	}
	if err := r.Store.UpdateTokens(res.AccessToken, res.RefreshToken); err != nil {
		telemetry.Count(telemetry.TokenRefreshErrors)
		slog.Warn("token persist failed", slog.Any("err", err))
		return
	}
	telemetry.Count(telemetry.TokenRefreshes)
	slog.Info("token refreshed", slog.Time("expires_at", twitchapi.ComputeExpiry(res.ExpiresIn)))
}

// Run performs one eager refresh and then refreshes on a fixed interval until
// ctx is cancelled. Overlapping refreshes are not serialized: the refresh
// token is single-use, so a losing race simply gets rejected upstream.
func (r *Refresher) Run(ctx context.Context) {
	slog.Info("token refresher started", slog.Duration("interval", r.interval()))
	r.RefreshIfPossible(ctx)
	ticker := r.clock().NewTicker(r.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			go r.RefreshIfPossible(ctx)
		}
	}
}
