package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// SendResult reports per-message delivery status from the chat endpoint.
type SendResult struct {
	MessageID  string `json:"message_id"`
	IsSent     bool   `json:"is_sent"`
	DropReason string `json:"drop_reason,omitempty"`
}

// SendChatMessage posts a chat message to the configured broadcaster's channel.
// When the bot is not the channel owner, Twitch requires a moderator identity,
// so the bot's own id is attached as the moderator_id query parameter.
// Provider-side drops (e.g. AutoMod) come back with IsSent=false, not an error.
func (c *Client) SendChatMessage(ctx context.Context, text string) (*SendResult, error) {
	creds := c.Creds.Snapshot()
	raw, err := json.Marshal(map[string]string{"message": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.helixURL()+"/chat/messages", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("broadcaster_id", creds.ChannelUserID)
	if creds.BotUserID != creds.ChannelUserID {
		q.Set("moderator_id", creds.BotUserID)
	}
	req.URL.RawQuery = q.Encode()
	c.setHelixHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("twitch send message failed: %s: %s", resp.Status, string(b))
	}
	var res struct {
		Data []SendResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return &SendResult{}, nil
	}
	return &res.Data[0], nil
}
