package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// SubscriptionRequest is the create-subscription body for the EventSub API.
type SubscriptionRequest struct {
	Type      string                `json:"type"`
	Version   string                `json:"version"`
	Condition SubscriptionCondition `json:"condition"`
	Transport SubscriptionTransport `json:"transport"`
}

type SubscriptionCondition struct {
	BroadcasterUserID string `json:"broadcaster_user_id"`
	UserID            string `json:"user_id"`
}

type SubscriptionTransport struct {
	Method    string `json:"method"`
	SessionID string `json:"session_id"`
}

// CreateChatSubscription registers interest in channel.chat.message events for
// the configured broadcaster, delivered over the given websocket session.
// Success is specifically 202 Accepted plus an assigned subscription id.
func (c *Client) CreateChatSubscription(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("session id empty")
	}
	creds := c.Creds.Snapshot()
	body := SubscriptionRequest{
		Type:    "channel.chat.message",
		Version: "1",
		Condition: SubscriptionCondition{
			BroadcasterUserID: creds.ChannelUserID,
			UserID:            creds.BotUserID,
		},
		Transport: SubscriptionTransport{
			Method:    "websocket",
			SessionID: sessionID,
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.helixURL()+"/eventsub/subscriptions", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	c.setHelixHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("twitch subscribe rejected: %s: %s", resp.Status, string(b))
	}
	var res struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", err
	}
	if len(res.Data) == 0 || res.Data[0].ID == "" {
		return "", errors.New("twitch subscribe accepted but no subscription id in response")
	}
	return res.Data[0].ID, nil
}
