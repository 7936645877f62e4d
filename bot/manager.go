// Package bot is the message-handling core: it tracks per-channel activity,
// turns inbound chat notifications into generated replies, suppresses
// duplicate responses, and runs the idle autopost scheduler.
package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onnwee/streambot/content"
	"github.com/onnwee/streambot/credentials"
	"github.com/onnwee/streambot/eventsub"
	"github.com/onnwee/streambot/telemetry"
	"github.com/onnwee/streambot/twitchapi"
)

// windowSize caps the short-term context handed to the responder.
const windowSize = 20

// Line is one chat message in a channel's short-term window.
type Line struct {
	User string
	Text string
	At   time.Time
}

// MemoryEntry is a durable conversation record handed to the memory store.
type MemoryEntry struct {
	Channel string
	Role    string // "user" or "bot"
	User    string
	Text    string
	At      time.Time
}

// Responder generates text. Empty output means "nothing to say" and is a
// silent skip, not an error.
type Responder interface {
	GenerateReply(ctx context.Context, channel string, window []Line) (string, error)
	GeneratePost(ctx context.Context, item content.Item) (string, error)
}

// MemoryStore persists conversation history. Failures are logged, never fatal;
// chat keeps flowing without memory.
type MemoryStore interface {
	PersistEntry(ctx context.Context, entry MemoryEntry) error
}

// Sender issues the outbound send-message call. Satisfied by *twitchapi.Client.
type Sender interface {
	SendChatMessage(ctx context.Context, text string) (*twitchapi.SendResult, error)
}

// AutopostConfig gates the idle posting scheduler. Immutable after startup.
type AutopostConfig struct {
	Enabled          bool
	InactivityWindow time.Duration
	MinSpacing       time.Duration
	Interval         time.Duration
}

// channelState is the per-channel activity record. Created lazily on first
// observed message (or first scheduler touch) and kept for the process
// lifetime.
type channelState struct {
	lastActivity time.Time
	lastAutopost time.Time
	lastResponse string
	window       []Line
}

// CredentialSource yields the current credential snapshot. Satisfied by
// *credentials.Store.
type CredentialSource interface {
	Snapshot() credentials.Credentials
}

// Manager owns all channel state. Mutations arrive from the session's
// notification handler and the autopost ticker; the internal lock prevents
// lost updates between those two.
type Manager struct {
	Creds     CredentialSource
	Sender    Sender
	Responder Responder
	Memory    MemoryStore
	Source    content.Source
	Autopost  AutopostConfig
	Clock     clockwork.Clock

	mu       sync.Mutex
	channels map[string]*channelState
}

func (m *Manager) clock() clockwork.Clock {
	if m.Clock != nil {
		return m.Clock
	}
	return clockwork.NewRealClock()
}

// record returns the state for a channel key, creating it with
// lastActivity=now so a fresh process does not immediately autopost into a
// channel it has never observed.
func (m *Manager) record(key string) *channelState {
	if m.channels == nil {
		m.channels = make(map[string]*channelState)
	}
	st, ok := m.channels[key]
	if !ok {
		st = &channelState{lastActivity: m.clock().Now()}
		m.channels[key] = st
	}
	return st
}

// HandleChatMessage is the inbound path, called for every chat notification.
// The bot's own messages are ignored entirely: they update nothing and
// generate nothing, preventing self-feedback loops.
func (m *Manager) HandleChatMessage(ctx context.Context, ev eventsub.ChatMessageEvent) {
	creds := m.Creds.Snapshot()
	if ev.ChatterUserID == creds.BotUserID {
		return
	}
	now := m.clock().Now()
	key := ev.BroadcasterUserID

	m.mu.Lock()
	st := m.record(key)
	st.lastActivity = now
	st.window = appendLine(st.window, Line{User: ev.ChatterUserName, Text: ev.Message.Text, At: now})
	window := make([]Line, len(st.window))
	copy(window, st.window)
	m.mu.Unlock()

	m.persist(ctx, MemoryEntry{Channel: key, Role: "user", User: ev.ChatterUserName, Text: ev.Message.Text, At: now})

	reply, err := m.Responder.GenerateReply(ctx, key, window)
	if err != nil {
		slog.Warn("bot: reply generation failed", slog.Any("err", err))
		return
	}
	if reply == "" {
		return
	}

	// Claim the reply slot before sending: notifications are handled on
	// separate goroutines, and two in-flight identical generations must not
	// both pass the duplicate check and double-send.
	m.mu.Lock()
	if reply == st.lastResponse {
		m.mu.Unlock()
		telemetry.Count(telemetry.RepliesSuppressed)
		slog.Info("bot: suppressing duplicate reply", slog.String("channel", key))
		return
	}
	prev := st.lastResponse
	st.lastResponse = reply
	m.mu.Unlock()

	if err := m.SendMessage(ctx, reply); err != nil {
		// Release the claim so the reply can be retried later.
		m.mu.Lock()
		if st.lastResponse == reply {
			st.lastResponse = prev
		}
		m.mu.Unlock()
		return
	}
	telemetry.Count(telemetry.RepliesSent)

	m.mu.Lock()
	st.window = appendLine(st.window, Line{User: creds.BotUsername, Text: reply, At: m.clock().Now()})
	m.mu.Unlock()

	m.persist(ctx, MemoryEntry{Channel: key, Role: "bot", User: creds.BotUsername, Text: reply, At: m.clock().Now()})
}

// SendMessage sends text to the configured channel. Provider-side rejection
// (drop, AutoMod hold) and transport errors are logged and reported to the
// caller, but never escalate beyond it.
func (m *Manager) SendMessage(ctx context.Context, text string) error {
	res, err := m.Sender.SendChatMessage(ctx, text)
	if err != nil {
		telemetry.Count(telemetry.SendFailures)
		slog.Warn("bot: send failed", slog.Any("err", err))
		return err
	}
	if !res.IsSent {
		telemetry.Count(telemetry.SendFailures)
		slog.Warn("bot: message dropped by provider", slog.String("drop_reason", res.DropReason))
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, entry MemoryEntry) {
	if m.Memory == nil {
		return
	}
	if err := m.Memory.PersistEntry(ctx, entry); err != nil {
		slog.Warn("bot: memory persist failed", slog.Any("err", err))
	}
}

func appendLine(window []Line, line Line) []Line {
	window = append(window, line)
	if len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}
	return window
}

// LastActivity reports the channel's activity timestamps for /status.
func (m *Manager) LastActivity(key string) (activity, autopost time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.channels[key]
	if !ok {
		return time.Time{}, time.Time{}
	}
	return st.lastActivity, st.lastAutopost
}
