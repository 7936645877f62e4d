// Package eventsub owns the long-lived EventSub websocket session: connecting,
// parsing the self-describing frame envelopes, walking the session state
// machine, and dispatching chat notifications without stalling the read loop.
package eventsub

import "encoding/json"

// Frame kinds carried in the envelope's message_type discriminator.
const (
	kindWelcome      = "session_welcome"
	kindKeepalive    = "session_keepalive"
	kindNotification = "notification"
	kindReconnect    = "session_reconnect"
)

// Envelope is the self-describing wrapper around every inbound frame. The
// payload is kind-specific and parsed lazily so unknown kinds cost nothing.
type Envelope struct {
	Metadata struct {
		MessageID        string `json:"message_id"`
		MessageType      string `json:"message_type"`
		MessageTimestamp string `json:"message_timestamp"`
	} `json:"metadata"`
	Payload json.RawMessage `json:"payload"`
}

// WelcomePayload carries the session identifier needed for subscribing.
type WelcomePayload struct {
	Session struct {
		ID                      string `json:"id"`
		KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
	} `json:"session"`
}

// NotificationPayload wraps a delivered event and the subscription it matched.
type NotificationPayload struct {
	Subscription struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"subscription"`
	Event ChatMessageEvent `json:"event"`
}

// ChatMessageEvent is the channel.chat.message event body.
type ChatMessageEvent struct {
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	ChatterUserID        string `json:"chatter_user_id"`
	ChatterUserName      string `json:"chatter_user_name"`
	MessageID            string `json:"message_id"`
	Message              struct {
		Text string `json:"text"`
	} `json:"message"`
}
