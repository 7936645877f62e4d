package bot

import (
	"context"
	"log/slog"

	"github.com/onnwee/streambot/telemetry"
)

// RunAutopost evaluates the idle-posting rules on a fixed interval until ctx
// is cancelled. Ticks are fire-and-forget: a slow tick still running when the
// next one fires is tolerated, not serialized.
func (m *Manager) RunAutopost(ctx context.Context) {
	if !m.Autopost.Enabled {
		slog.Info("autopost: disabled")
		return
	}
	slog.Info("autopost: scheduler started",
		slog.Duration("interval", m.Autopost.Interval),
		slog.Duration("inactivity_window", m.Autopost.InactivityWindow),
		slog.Duration("min_spacing", m.Autopost.MinSpacing))
	ticker := m.clock().NewTicker(m.Autopost.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			go m.tick(ctx)
		}
	}
}

// tick runs one scheduler evaluation. Every early return is a silent skip by
// design: disabled feature, active chat, recent post, or empty content are
// normal conditions, not errors.
func (m *Manager) tick(ctx context.Context) {
	if !m.Autopost.Enabled || m.Source == nil {
		return
	}
	creds := m.Creds.Snapshot()
	key := creds.ChannelUserID
	now := m.clock().Now()

	m.mu.Lock()
	st := m.record(key)
	idleFor := now.Sub(st.lastActivity)
	sinceLastPost := now.Sub(st.lastAutopost)
	m.mu.Unlock()

	if idleFor <= m.Autopost.InactivityWindow || sinceLastPost <= m.Autopost.MinSpacing {
		return
	}

	item, err := m.Source.Next(ctx)
	if err != nil {
		slog.Warn("autopost: content fetch failed", slog.Any("err", err))
		return
	}
	if item == nil {
		return
	}

	text, err := m.Responder.GeneratePost(ctx, *item)
	if err != nil {
		slog.Warn("autopost: post generation failed", slog.Any("err", err))
		return
	}
	if text == "" {
		return
	}

	// A failed send leaves lastAutopost unchanged so the next tick retries.
	if err := m.SendMessage(ctx, text); err != nil {
		return
	}
	telemetry.Count(telemetry.AutopostsSent)
	slog.Info("autopost: posted", slog.String("channel", key), slog.String("source", item.Source))

	m.mu.Lock()
	st.lastAutopost = now
	st.window = appendLine(st.window, Line{User: creds.BotUsername, Text: text, At: now})
	m.mu.Unlock()

	m.persist(ctx, MemoryEntry{Channel: key, Role: "bot", User: creds.BotUsername, Text: text, At: now})
}
