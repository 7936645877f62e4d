package eventsub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/onnwee/streambot/telemetry"
)

const defaultWSURL = "wss://eventsub.wss.twitch.tv/ws"

// State is the session connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingWelcome
	StateSubscribed
	StateNotifyingError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingWelcome:
		return "awaiting_welcome"
	case StateSubscribed:
		return "subscribed"
	case StateNotifyingError:
		return "notifying_error"
	}
	return "unknown"
}

// ErrAlreadyStarted is returned by Start on a session that is not disconnected.
var ErrAlreadyStarted = errors.New("eventsub: session already started")

// Subscriber creates the provider-side subscription once a handshake lands.
// Satisfied by *twitchapi.Client.
type Subscriber interface {
	CreateChatSubscription(ctx context.Context, sessionID string) (string, error)
}

// Handler consumes chat notifications. Invoked on its own goroutine so slow
// handlers never stall the frame-read loop.
type Handler func(ctx context.Context, ev ChatMessageEvent)

// dialer abstracts websocket dialing for tests.
type dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Session owns one websocket connection to the EventSub endpoint. It does not
// reconnect by itself: a disconnect is surfaced on Done and the owning
// supervisor decides whether to call Start again.
type Session struct {
	Subscriber Subscriber
	Handler    Handler
	URL        string
	Dialer     dialer

	mu             sync.Mutex
	state          State
	sessionID      string
	subscriptionID string
	conn           *websocket.Conn
	closed         bool
	done           chan error
}

func (s *Session) url() string {
	if s.URL != "" {
		return s.URL
	}
	return defaultWSURL
}

func (s *Session) dialer() dialer {
	if s.Dialer != nil {
		return s.Dialer
	}
	return websocket.DefaultDialer
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the provider-assigned session identifier, empty until the
// welcome frame arrives and after a disconnect.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// SubscriptionID returns the remote subscription id, recorded for observability.
func (s *Session) SubscriptionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptionID
}

// Done reports the session's exit: a transport error, or nil after Close.
// It is created by Start; reading before Start returns nil channel semantics
// (blocks forever), so callers wire it up after a successful Start.
func (s *Session) Done() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Start dials the EventSub endpoint and launches the read loop. Credential
// validation must have happened before this is called. Returns immediately
// after the transport-level open; the welcome frame arrives asynchronously.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateConnecting
	s.closed = false
	s.done = make(chan error, 1)
	s.mu.Unlock()

	conn, resp, err := s.dialer().DialContext(ctx, s.url(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateAwaitingWelcome
	s.mu.Unlock()
	slog.Info("eventsub: connected, awaiting welcome", slog.String("url", s.url()))

	go s.readLoop(ctx)
	return nil
}

// Close tears down the transport. Idempotent; the read loop observes the
// closed connection and reports a nil exit on Done.
func (s *Session) Close() {
	s.mu.Lock()
	conn := s.conn
	s.closed = true
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (s *Session) readLoop(ctx context.Context) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.fail(err)
			return
		}
		s.handleFrame(ctx, raw)
	}
}

// fail runs the any-state → Disconnected transition: clear the session id,
// flag the error, and surface it once on Done.
func (s *Session) fail(err error) {
	s.mu.Lock()
	deliberate := s.closed
	s.state = StateNotifyingError
	s.sessionID = ""
	s.subscriptionID = ""
	conn := s.conn
	s.conn = nil
	done := s.done
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	telemetry.SetSessionConnected(false)

	if deliberate {
		slog.Info("eventsub: session closed")
		done <- nil
	} else {
		slog.Warn("eventsub: session lost", slog.Any("err", err))
		done <- err
	}

	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
}

// handleFrame parses one envelope and advances the state machine. Malformed
// envelopes and unknown kinds are logged and dropped; they never change state
// and never tear down the transport.
func (s *Session) handleFrame(ctx context.Context, raw []byte) {
	telemetry.Count(telemetry.FramesReceived)
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		telemetry.Count(telemetry.FramesDropped)
		slog.Warn("eventsub: dropping malformed frame", slog.Any("err", err))
		return
	}

	switch env.Metadata.MessageType {
	case kindWelcome:
		s.handleWelcome(ctx, env.Payload)
	case kindKeepalive:
		slog.Debug("eventsub: keepalive")
	case kindNotification:
		s.handleNotification(ctx, env.Payload)
	case kindReconnect:
		// The provider will close this connection shortly; the supervisor
		// redials when Done fires, so only note it here.
		slog.Warn("eventsub: provider requested reconnect")
	default:
		telemetry.Count(telemetry.FramesDropped)
		slog.Info("eventsub: ignoring unrecognized frame kind", slog.String("kind", env.Metadata.MessageType))
	}
}

func (s *Session) handleWelcome(ctx context.Context, payload json.RawMessage) {
	var p WelcomePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Session.ID == "" {
		telemetry.Count(telemetry.FramesDropped)
		slog.Warn("eventsub: dropping welcome without session id", slog.Any("err", err))
		return
	}

	s.mu.Lock()
	if s.state != StateAwaitingWelcome {
		s.mu.Unlock()
		slog.Warn("eventsub: ignoring welcome outside handshake", slog.String("session_id", p.Session.ID))
		return
	}
	s.sessionID = p.Session.ID
	s.state = StateSubscribed
	s.mu.Unlock()

	telemetry.SetSessionConnected(true)
	slog.Info("eventsub: welcome received", slog.String("session_id", p.Session.ID),
		slog.Int("keepalive_timeout_s", p.Session.KeepaliveTimeoutSeconds))

	// Fire and forget: a rejected subscribe is logged, and a fresh attempt only
	// makes sense on the next handshake anyway.
	go s.subscribe(ctx, p.Session.ID)
}

func (s *Session) subscribe(ctx context.Context, sessionID string) {
	id, err := s.Subscriber.CreateChatSubscription(ctx, sessionID)
	if err != nil {
		slog.Error("eventsub: subscribe failed", slog.Any("err", err))
		return
	}
	s.mu.Lock()
	s.subscriptionID = id
	s.mu.Unlock()
	slog.Info("eventsub: subscribed to chat messages", slog.String("subscription_id", id))
}

func (s *Session) handleNotification(ctx context.Context, payload json.RawMessage) {
	s.mu.Lock()
	subscribed := s.state == StateSubscribed
	s.mu.Unlock()
	if !subscribed {
		slog.Warn("eventsub: ignoring notification before welcome")
		return
	}

	var p NotificationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		telemetry.Count(telemetry.FramesDropped)
		slog.Warn("eventsub: dropping malformed notification", slog.Any("err", err))
		return
	}
	telemetry.Count(telemetry.NotificationsSeen)
	if s.Handler != nil {
		go s.Handler(ctx, p.Event)
	}
}
