// Package openai implements the llm.Client collaborator on the OpenAI
// chat-completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/stepflowhq/stepflow/llm"
)

// ErrEmptyResponse is returned when the API reports no choices.
var ErrEmptyResponse = errors.New("no response from model")

// DefaultModel is used when an ai node does not name a model.
const DefaultModel = goopenai.GPT4oMini

// Client implements llm.Client using the OpenAI API.
type Client struct {
	api          *goopenai.Client
	defaultModel string
}

var _ llm.Client = (*Client)(nil)

type options struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
}

// Option configures the client.
type Option func(*options)

// WithAPIKey sets the API key. Defaults to the OPENAI_API_KEY environment
// variable.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithDefaultModel sets the model used when the node config names none.
func WithDefaultModel(model string) Option {
	return func(o *options) { o.defaultModel = model }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New creates an OpenAI-backed completion client.
func New(opts ...Option) (*Client, error) {
	o := &options{
		apiKey:       os.Getenv("OPENAI_API_KEY"),
		defaultModel: DefaultModel,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.apiKey == "" {
		return nil, errors.New("openai: missing API key; pass WithAPIKey or set OPENAI_API_KEY")
	}

	cfg := goopenai.DefaultConfig(o.apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}

	return &Client{
		api:          goopenai.NewClientWithConfig(cfg),
		defaultModel: o.defaultModel,
	}, nil
}

// Complete runs one chat completion for the conversation.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		role := goopenai.ChatMessageRoleUser
		switch m.Role {
		case "assistant":
			role = goopenai.ChatMessageRoleAssistant
		case "system":
			role = goopenai.ChatMessageRoleSystem
		}
		messages = append(messages, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
