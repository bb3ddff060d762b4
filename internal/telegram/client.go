// Package telegram is a minimal Telegram Bot API client covering what the
// bot needs: long-polling getUpdates and rate-limited sendMessage, with
// automatic chunking of texts above the API's message size limit.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ironzo/arxiveparser/internal/observability"
)

const (
	// defaultBaseURL is the Telegram Bot API endpoint.
	defaultBaseURL = "https://api.telegram.org"

	// MaxMessageLength is the chunk size for outbound messages, slightly
	// under the API's 4096-character limit.
	MaxMessageLength = 4000
)

// Update is one element of a getUpdates response.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an incoming Telegram message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// User identifies the sender of a message.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// apiResponse is the envelope every Bot API method returns.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// Config holds Telegram client settings.
type Config struct {
	// Token is the bot token.
	Token string

	// BaseURL overrides the API endpoint (for tests).
	BaseURL string

	// PollTimeout is the getUpdates long-poll duration.
	PollTimeout time.Duration

	// RequestTimeout is the HTTP timeout; it must exceed PollTimeout.
	RequestTimeout time.Duration

	// SendRateLimit caps outbound messages per second. Telegram allows
	// around 30 messages per second bot-wide.
	SendRateLimit float64
}

// Client speaks the Telegram Bot API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	poll       time.Duration
	limiter    *rate.Limiter
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a Telegram client from the configuration.
func NewClient(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 30 * time.Second
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= poll {
		requestTimeout = poll + 10*time.Second
	}
	sendRate := cfg.SendRateLimit
	if sendRate <= 0 {
		sendRate = 25
	}

	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
		token:      cfg.Token,
		poll:       poll,
		limiter:    rate.NewLimiter(rate.Limit(sendRate), 1),
		logger:     logger.With().Str("component", "telegram").Logger(),
		metrics:    metrics,
	}
}

// GetUpdates long-polls for updates after offset. It returns an empty slice
// when the poll times out with nothing new.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(c.poll.Seconds()),
		"allowed_updates": []string{"message"},
	}

	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// Send delivers text to the chat, splitting it into multiple messages when
// it exceeds the API limit. Chunks are sent in order; the first failed chunk
// aborts the rest.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range SplitMessage(text, MaxMessageLength) {
		if err := c.sendOne(ctx, chatID, chunk); err != nil {
			if c.metrics != nil {
				c.metrics.RecordMessageFailed()
			}
			return err
		}
		if c.metrics != nil {
			c.metrics.RecordMessageSent()
		}
	}
	return nil
}

// sendOne delivers a single message under the outbound rate limit.
func (c *Client) sendOne(ctx context.Context, chatID int64, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send rate limiter: %w", err)
	}

	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	return c.call(ctx, "sendMessage", payload, nil)
}

// call invokes one Bot API method and decodes its result into out when
// non-nil.
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshaling %s payload: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("telegram: reading %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("telegram: decoding %s response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram: %s failed with code %d: %s", method, envelope.ErrorCode, envelope.Description)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram: decoding %s result: %w", method, err)
		}
	}
	return nil
}
