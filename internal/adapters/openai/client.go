package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rs/zerolog"

	"github.com/github/rollup-and-away/internal/config"
)

const summarySystemPrompt = "You are a program manager writing an executive summary of engineering status rollups. " +
	"Given a markdown rollup of issues and their latest updates, produce a short summary: overall health, " +
	"notable risks or blockers, and what changed since last time. Keep it under 200 words, plain markdown."

type Client struct {
	api   openai.Client
	model string
	log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		api:   openai.NewClient(option.WithAPIKey(cfg.OpenAIKey), option.WithRequestTimeout(cfg.OpenAITimeout)),
		model: cfg.OpenAIModel,
		log:   log,
	}
}

// Summarize condenses a rendered rollup into an executive summary.
func (c *Client) Summarize(ctx context.Context, rollup string) (string, error) {
	if strings.TrimSpace(rollup) == "" {
		return "", errors.New("openai: nothing to summarize")
	}
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summarySystemPrompt),
			openai.UserMessage(rollup),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
