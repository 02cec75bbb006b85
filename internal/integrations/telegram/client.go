package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"relay-agent/internal/domain"
)

// maxMessageRunes keeps replies under the Bot API's 4096 character limit.
const maxMessageRunes = 3900

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message,omitempty"`
}

type message struct {
	MessageID int64  `json:"message_id"`
	From      *user  `json:"from,omitempty"`
	Chat      chat   `json:"chat"`
	Text      string `json:"text"`
}

type user struct {
	ID    int64 `json:"id"`
	IsBot bool  `json:"is_bot"`
}

type chat struct {
	ID int64 `json:"id"`
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// APIError is a Bot API response with ok=false or a non-2xx status.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s failed with status %d: %s", e.Method, e.StatusCode, e.Description)
}

// Client is a minimal Telegram Bot API client.
type Client struct {
	apiBase     string
	httpClient  *http.Client
	pollTimeout int
	limiter     *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithSendRate limits sendMessage calls to perSecond with an equal burst.
func WithSendRate(perSecond int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		}
	}
}

// NewClient creates a client for apiBase, e.g. "https://api.telegram.org/bot<token>".
// pollTimeout is the getUpdates long-poll duration in seconds.
func NewClient(apiBase string, pollTimeout int, opts ...Option) (*Client, error) {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		return nil, errors.New("telegram: api base must not be empty")
	}
	if pollTimeout < 0 {
		pollTimeout = 0
	}
	c := &Client{
		apiBase:     apiBase,
		pollTimeout: pollTimeout,
		httpClient:  &http.Client{Timeout: time.Duration(pollTimeout+10) * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(20), 20),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Poll long-polls for updates starting at offset. It returns the text messages
// worth relaying and the offset to use on the next call. Messages from bots,
// including our own, and messages without text are dropped.
func (c *Client) Poll(ctx context.Context, offset int64) ([]domain.InboundMessage, int64, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(c.pollTimeout))
	params.Set("allowed_updates", `["message"]`)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, offset, fmt.Errorf("telegram: create getUpdates request: %w", err)
	}
	raw, err := c.do(req, "getUpdates")
	if err != nil {
		return nil, offset, err
	}

	var updates []update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, offset, fmt.Errorf("telegram: parse getUpdates result: %w", err)
	}

	next := offset
	out := make([]domain.InboundMessage, 0, len(updates))
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
		m := u.Message
		if m == nil || (m.From != nil && m.From.IsBot) {
			continue
		}
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		out = append(out, domain.InboundMessage{
			ID:     strconv.FormatInt(m.MessageID, 10),
			ChatID: strconv.FormatInt(m.Chat.ID, 10),
			Text:   text,
		})
	}
	return out, next, nil
}

// SendReply posts text to chatID, truncated to the message size limit.
func (c *Client) SendReply(ctx context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram: wait for send slot: %w", err)
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: id, Text: truncate(text, maxMessageRunes)})
	if err != nil {
		return fmt.Errorf("telegram: marshal sendMessage: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req, "sendMessage")
	return err
}

func (c *Client) do(req *http.Request, method string) (json.RawMessage, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer func() { _ = res.Body.Close() }()

	buf, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("telegram: read %s response: %w", method, err)
	}

	var payload apiResponse
	if err := json.Unmarshal(buf, &payload); err != nil {
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return nil, &APIError{Method: method, StatusCode: res.StatusCode, Description: strings.TrimSpace(truncate(string(buf), 200))}
		}
		return nil, fmt.Errorf("telegram: parse %s response: %w", method, err)
	}
	if !payload.OK || res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &APIError{Method: method, StatusCode: res.StatusCode, Description: payload.Description}
	}
	return payload.Result, nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
