package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/streambot/credentials"
)

type staticCreds struct {
	creds credentials.Credentials
}

func (s staticCreds) Snapshot() credentials.Credentials { return s.creds }

func testCreds() credentials.Credentials {
	return credentials.Credentials{
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		RefreshToken:  "refresh-1",
		BotUserID:     "100",
		BotUsername:   "streambot",
		OAuthToken:    "oauth-1",
		ChannelUserID: "200",
	}
}

func newTestClient(srv *httptest.Server, creds credentials.Credentials) *Client {
	return &Client{
		Creds:    staticCreds{creds},
		AuthURL:  srv.URL,
		HelixURL: srv.URL,
	}
}

func TestValidateToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/validate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv, testCreds())
	if err := c.ValidateToken(context.Background()); err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if gotAuth != "OAuth oauth-1" {
		t.Errorf("Authorization = %q, want OAuth oauth-1", gotAuth)
	}
}

func TestValidateTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":401,"message":"invalid access token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv, testCreds())
	if err := c.ValidateToken(context.Background()); err == nil {
		t.Error("ValidateToken should fail on 401")
	}
}

func TestRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if g := r.Form.Get("grant_type"); g != "refresh_token" {
			t.Errorf("grant_type = %q", g)
		}
		if g := r.Form.Get("refresh_token"); g != "refresh-1" {
			t.Errorf("refresh_token = %q", g)
		}
		_ = json.NewEncoder(w).Encode(RefreshResult{
			AccessToken:  "oauth-2",
			RefreshToken: "refresh-2",
			ExpiresIn:    14400,
		})
	}))
	defer srv.Close()

	c := newTestClient(srv, testCreds())
	res, err := c.RefreshToken(context.Background(), "client-id", "client-secret", "refresh-1")
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if res.AccessToken != "oauth-2" || res.RefreshToken != "refresh-2" {
		t.Errorf("RefreshToken = %+v", res)
	}
}

func TestRefreshTokenMissingArgs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no HTTP call expected with missing args")
	}))
	defer srv.Close()

	c := newTestClient(srv, testCreds())
	if _, err := c.RefreshToken(context.Background(), "client-id", "", "refresh-1"); err == nil {
		t.Error("RefreshToken should fail without client secret")
	}
}

func TestRefreshTokenIncompleteResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(RefreshResult{AccessToken: "oauth-2"}) // no refresh token
	}))
	defer srv.Close()

	c := newTestClient(srv, testCreds())
	if _, err := c.RefreshToken(context.Background(), "client-id", "client-secret", "refresh-1"); err == nil {
		t.Error("RefreshToken should fail when refresh_token is missing from response")
	}
}

func TestCreateChatSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/eventsub/subscriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if g := r.Header.Get("Authorization"); g != "Bearer oauth-1" {
			t.Errorf("Authorization = %q", g)
		}
		if g := r.Header.Get("Client-Id"); g != "client-id" {
			t.Errorf("Client-Id = %q", g)
		}
		var body SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Type != "channel.chat.message" || body.Version != "1" {
			t.Errorf("type/version = %s/%s", body.Type, body.Version)
		}
		if body.Condition.BroadcasterUserID != "200" || body.Condition.UserID != "100" {
			t.Errorf("condition = %+v", body.Condition)
		}
		if body.Transport.Method != "websocket" || body.Transport.SessionID != "sess-1" {
			t.Errorf("transport = %+v", body.Transport)
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"data":[{"id":"sub-42"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv, testCreds())
	id, err := c.CreateChatSubscription(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("CreateChatSubscription: %v", err)
	}
	if id != "sub-42" {
		t.Errorf("subscription id = %q, want sub-42", id)
	}
}

func TestCreateChatSubscriptionRequiresAccepted(t *testing.T) {
	// A generic 200 is not a success for this endpoint.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":[{"id":"sub-42"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv, testCreds())
	if _, err := c.CreateChatSubscription(context.Background(), "sess-1"); err == nil {
		t.Error("CreateChatSubscription should require 202 Accepted")
	}
}

func TestSendChatMessageModeratorParam(t *testing.T) {
	cases := []struct {
		name      string
		botID     string
		channelID string
		wantMod   string
	}{
		{"bot is not channel owner", "100", "200", "100"},
		{"bot is channel owner", "100", "100", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotBroadcaster, gotModerator string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotBroadcaster = r.URL.Query().Get("broadcaster_id")
				gotModerator = r.URL.Query().Get("moderator_id")
				_, _ = w.Write([]byte(`{"data":[{"message_id":"m1","is_sent":true}]}`))
			}))
			defer srv.Close()

			creds := testCreds()
			creds.BotUserID = tc.botID
			creds.ChannelUserID = tc.channelID
			c := newTestClient(srv, creds)
			res, err := c.SendChatMessage(context.Background(), "hello")
			if err != nil {
				t.Fatalf("SendChatMessage: %v", err)
			}
			if !res.IsSent {
				t.Error("IsSent = false, want true")
			}
			if gotBroadcaster != tc.channelID {
				t.Errorf("broadcaster_id = %q, want %q", gotBroadcaster, tc.channelID)
			}
			if gotModerator != tc.wantMod {
				t.Errorf("moderator_id = %q, want %q", gotModerator, tc.wantMod)
			}
		})
	}
}

func TestSendChatMessageDropReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"message_id":"","is_sent":false,"drop_reason":"automod_held"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv, testCreds())
	res, err := c.SendChatMessage(context.Background(), "spicy")
	if err != nil {
		t.Fatalf("SendChatMessage: %v", err)
	}
	if res.IsSent || res.DropReason != "automod_held" {
		t.Errorf("res = %+v, want dropped with automod_held", res)
	}
}

func TestSendChatMessageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv, testCreds())
	if _, err := c.SendChatMessage(context.Background(), "hello"); err == nil {
		t.Error("SendChatMessage should surface non-2xx as error")
	}
}
