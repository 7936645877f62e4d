package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/onnwee/streambot/bot"
	"github.com/onnwee/streambot/eventsub"
)

// SessionStatus is the subset of the push session the ops surface reports on.
// Satisfied by *eventsub.Session.
type SessionStatus interface {
	State() eventsub.State
	SessionID() string
	SubscriptionID() string
}

// Handlers carries the dependencies for the ops endpoints.
type Handlers struct {
	DB      *sql.DB
	Session SessionStatus
	Bot     *bot.Manager
	Creds   bot.CredentialSource
}

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := h.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed checks: the
// database must answer and the push session must be subscribed.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error {
			if h.DB == nil {
				return nil
			}
			return h.DB.PingContext(r.Context())
		}},
		{"session", func() error {
			if h.Session == nil {
				return fmt.Errorf("no session")
			}
			if st := h.Session.State(); st != eventsub.StateSubscribed {
				return fmt.Errorf("session %s", st)
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

type statusResponse struct {
	SessionState   string     `json:"session_state"`
	SessionID      string     `json:"session_id,omitempty"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	Channel        string     `json:"channel,omitempty"`
	BotUsername    string     `json:"bot_username,omitempty"`
	LastActivity   *time.Time `json:"last_activity,omitempty"`
	LastAutopost   *time.Time `json:"last_autopost,omitempty"`
}

// HandleStatus reports the session state machine and per-channel activity
// timestamps.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{SessionState: "unknown"}
	if h.Session != nil {
		resp.SessionState = h.Session.State().String()
		resp.SessionID = h.Session.SessionID()
		resp.SubscriptionID = h.Session.SubscriptionID()
	}
	if h.Creds != nil {
		creds := h.Creds.Snapshot()
		resp.Channel = creds.ChannelUserID
		resp.BotUsername = creds.BotUsername
		if h.Bot != nil {
			activity, autopost := h.Bot.LastActivity(creds.ChannelUserID)
			if !activity.IsZero() {
				resp.LastActivity = &activity
			}
			if !autopost.IsZero() {
				resp.LastAutopost = &autopost
			}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
