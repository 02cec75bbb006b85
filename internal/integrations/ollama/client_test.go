package ollama

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeLLM struct {
	reply     string
	err       error
	gotPrompt string
	gotModel  string
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	f.gotModel = opts.Model
	if len(messages) > 0 && len(messages[0].Parts) > 0 {
		if text, ok := messages[0].Parts[0].(llms.TextContent); ok {
			f.gotPrompt = text.Text
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(" ", "llama3.1:8b")
	require.Error(t, err)

	_, err = newClient(nil, "llama3.1:8b")
	require.Error(t, err)

	_, err = newClient(&fakeLLM{}, "")
	require.Error(t, err)
}

func TestSend_DefaultModel(t *testing.T) {
	llm := &fakeLLM{reply: "  pong\n"}
	c, err := newClient(llm, "llama3.1:8b")
	require.NoError(t, err)

	reply, err := c.Send(context.Background(), "user: ping", "")
	require.NoError(t, err)
	require.Equal(t, "pong", reply)
	require.Equal(t, "user: ping", llm.gotPrompt)
	require.Equal(t, "llama3.1:8b", llm.gotModel)
}

func TestSend_ModelOverride(t *testing.T) {
	llm := &fakeLLM{reply: "x"}
	c, err := newClient(llm, "llama3.1:8b")
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "p", "qwen2.5")
	require.NoError(t, err)
	require.Equal(t, "qwen2.5", llm.gotModel)
}

func TestSend_Error(t *testing.T) {
	c, err := newClient(&fakeLLM{err: errors.New("connection refused")}, "llama3.1:8b")
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "p", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
}
