package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflowhq/stepflow/llm"
)

func newFakeAPI(t *testing.T, handler func(req goopenai.ChatCompletionRequest) goopenai.ChatCompletionResponse) (*httptest.Server, *Client) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req goopenai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(handler(req))
	}))
	t.Cleanup(srv.Close)

	c, err := New(WithAPIKey("test-key"), WithBaseURL(srv.URL+"/v1"))
	require.NoError(t, err)
	return srv, c
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing API key")
}

func TestClient_Complete(t *testing.T) {
	var captured goopenai.ChatCompletionRequest
	_, c := newFakeAPI(t, func(req goopenai.ChatCompletionRequest) goopenai.ChatCompletionResponse {
		captured = req
		return goopenai.ChatCompletionResponse{
			Choices: []goopenai.ChatCompletionChoice{
				{Message: goopenai.ChatCompletionMessage{Role: "assistant", Content: "Hello Ana!"}},
			},
		}
	})

	out, err := c.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "You are a helpful store assistant.",
		Model:        "gpt-4o",
		Temperature:  0.2,
		Messages: []llm.Message{
			{Role: "assistant", Content: "Hi, what's your name?"},
			{Role: "user", Content: "Ana"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ana!", out)

	assert.Equal(t, "gpt-4o", captured.Model)
	require.Len(t, captured.Messages, 3)
	assert.Equal(t, goopenai.ChatMessageRoleSystem, captured.Messages[0].Role)
	assert.Equal(t, goopenai.ChatMessageRoleAssistant, captured.Messages[1].Role)
	assert.Equal(t, goopenai.ChatMessageRoleUser, captured.Messages[2].Role)
}

func TestClient_DefaultModel(t *testing.T) {
	var captured goopenai.ChatCompletionRequest
	_, c := newFakeAPI(t, func(req goopenai.ChatCompletionRequest) goopenai.ChatCompletionResponse {
		captured = req
		return goopenai.ChatCompletionResponse{
			Choices: []goopenai.ChatCompletionChoice{
				{Message: goopenai.ChatCompletionMessage{Content: "ok"}},
			},
		}
	})

	_, err := c.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, captured.Model)
}

func TestClient_EmptyResponse(t *testing.T) {
	_, c := newFakeAPI(t, func(req goopenai.ChatCompletionRequest) goopenai.ChatCompletionResponse {
		return goopenai.ChatCompletionResponse{}
	})

	_, err := c.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
