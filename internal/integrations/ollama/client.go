package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	lcollama "github.com/tmc/langchaingo/llms/ollama"
)

// Client sends prompts to a local Ollama server through langchaingo.
type Client struct {
	llm          llms.Model
	defaultModel string
}

// NewClient connects to the Ollama server at serverURL.
func NewClient(serverURL, defaultModel string) (*Client, error) {
	serverURL = strings.TrimSpace(serverURL)
	if serverURL == "" {
		return nil, errors.New("ollama: server url must not be empty")
	}
	llm, err := lcollama.New(
		lcollama.WithServerURL(serverURL),
		lcollama.WithModel(strings.TrimSpace(defaultModel)),
	)
	if err != nil {
		return nil, fmt.Errorf("ollama: create client: %w", err)
	}
	return newClient(llm, defaultModel)
}

func newClient(llm llms.Model, defaultModel string) (*Client, error) {
	if llm == nil {
		return nil, errors.New("ollama: model must not be nil")
	}
	defaultModel = strings.TrimSpace(defaultModel)
	if defaultModel == "" {
		return nil, errors.New("ollama: default model must not be empty")
	}
	return &Client{llm: llm, defaultModel: defaultModel}, nil
}

func (c *Client) Send(ctx context.Context, prompt, model string) (string, error) {
	if model = strings.TrimSpace(model); model == "" {
		model = c.defaultModel
	}
	reply, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, llms.WithModel(model))
	if err != nil {
		return "", fmt.Errorf("ollama: generate: %w", err)
	}
	return strings.TrimSpace(reply), nil
}
