package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const maxTokens = 4096

// messagesAPI is the subset of the SDK message service used by Client.
type messagesAPI interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client sends single-turn prompts through the Anthropic Messages API.
type Client struct {
	api          messagesAPI
	defaultModel string
}

type Option func(*options)

type options struct {
	requestOpts []option.RequestOption
}

// WithBaseURL points the SDK at a different API host.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			o.requestOpts = append(o.requestOpts, option.WithBaseURL(baseURL))
		}
	}
}

// NewClient builds an SDK-backed Client. The SDK's own retries are disabled;
// retrying is the caller's concern.
func NewClient(apiKey, defaultModel string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("anthropic: api key must not be empty")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, o.requestOpts...)
	sdkClient := sdk.NewClient(reqOpts...)
	return newClient(&sdkClient.Messages, defaultModel)
}

func newClient(api messagesAPI, defaultModel string) (*Client, error) {
	if api == nil {
		return nil, errors.New("anthropic: messages api must not be nil")
	}
	defaultModel = strings.TrimSpace(defaultModel)
	if defaultModel == "" {
		return nil, errors.New("anthropic: default model must not be empty")
	}
	return &Client{api: api, defaultModel: defaultModel}, nil
}

// Send returns the text of the first text block in the response, or "" when
// the response carries none.
func (c *Client) Send(ctx context.Context, prompt, model string) (string, error) {
	if model = strings.TrimSpace(model); model == "" {
		model = c.defaultModel
	}

	msg, err := c.api.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: create message: %w", err)
	}
	if msg == nil {
		return "", nil
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", nil
}
