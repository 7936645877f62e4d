// Package responder generates chat text with the OpenAI Responses API. It is
// the only component in the process that talks to a language model; everything
// upstream hands it a context window or a content item and gets back a string.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"github.com/onnwee/streambot/bot"
	"github.com/onnwee/streambot/content"
)

const defaultModel = "gpt-4o-mini"

const replyInstructions = "You are a friendly chat bot in a live stream chat. " +
	"Reply to the most recent message in one or two short sentences. " +
	"Stay casual, never use markdown, and if there is nothing worth replying to, respond with an empty message."

const postInstructions = "You are a friendly chat bot in a live stream chat. " +
	"Write one short, casual message pointing viewers at the linked content. " +
	"Include the URL verbatim and never use markdown."

// OpenAI implements bot.Responder against the Responses API.
type OpenAI struct {
	client osdk.Client
	model  string
}

// New builds a responder. The SDK reads OPENAI_API_KEY from the environment
// when no explicit key is given.
func New(apiKey, model string) *OpenAI {
	opts := []option.RequestOption{option.WithRequestTimeout(30 * time.Second)}
	if strings.TrimSpace(apiKey) != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	return &OpenAI{client: osdk.NewClient(opts...), model: model}
}

// GenerateReply produces a reply to the most recent window line. An empty
// result means the model chose to stay quiet, which the caller treats as a
// silent skip.
func (o *OpenAI) GenerateReply(ctx context.Context, channel string, window []bot.Line) (string, error) {
	if len(window) == 0 {
		return "", errors.New("responder: empty context window")
	}
	var b strings.Builder
	for _, line := range window {
		fmt.Fprintf(&b, "%s: %s\n", line.User, line.Text)
	}

	startedAt := time.Now()
	resp, err := o.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:        o.model,
		Instructions: osdk.String(replyInstructions),
		Input:        responses.ResponseNewParamsInputUnion{OfString: osdk.String(b.String())},
	})
	if err != nil {
		return "", fmt.Errorf("responder: reply generation: %w", err)
	}
	text := strings.TrimSpace(resp.OutputText())
	slog.Debug("responder: reply generated",
		slog.String("channel", channel),
		slog.Int("window_lines", len(window)),
		slog.Int("reply_length", len(text)),
		slog.Int64("duration_ms", time.Since(startedAt).Milliseconds()))
	return text, nil
}

// GeneratePost produces an idle-channel message for a content item.
func (o *OpenAI) GeneratePost(ctx context.Context, item content.Item) (string, error) {
	prompt := fmt.Sprintf("Title: %s\nURL: %s", item.Title, item.URL)
	resp, err := o.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:        o.model,
		Instructions: osdk.String(postInstructions),
		Input:        responses.ResponseNewParamsInputUnion{OfString: osdk.String(prompt)},
	})
	if err != nil {
		return "", fmt.Errorf("responder: post generation: %w", err)
	}
	return strings.TrimSpace(resp.OutputText()), nil
}
