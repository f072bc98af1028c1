// Package langchain adapts any langchaingo llms.Model to the llm.Client
// collaborator, so agents can run on every provider langchaingo supports.
package langchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/stepflowhq/stepflow/llm"
)

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("no response from model")

// Client wraps a langchaingo model.
type Client struct {
	model llms.Model
}

var _ llm.Client = (*Client)(nil)

// New creates an adapter over the given model.
func New(model llms.Model) *Client {
	return &Client{model: model}
}

// Complete runs one generation over the conversation transcript.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	content := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		content = append(content, llms.TextParts(schema.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, m := range req.Messages {
		role := schema.ChatMessageTypeHuman
		switch m.Role {
		case "assistant":
			role = schema.ChatMessageTypeAI
		case "system":
			role = schema.ChatMessageTypeSystem
		}
		content = append(content, llms.TextParts(role, m.Content))
	}

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := c.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("langchain completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
