package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultAPIEndpoint  = "https://api.line.me"
	defaultDataEndpoint = "https://api-data.line.me"
)

// PlatformError is a non-2xx response from the Messaging API.
type PlatformError struct {
	StatusCode int
	Body       string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("line api status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the LINE Messaging API with a channel access token.
type Client struct {
	httpClient   *http.Client
	token        string
	endpoint     string
	dataEndpoint string
	logger       *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEndpoints overrides the API and data endpoints, mainly for tests.
func WithEndpoints(api, data string) ClientOption {
	return func(c *Client) {
		if api != "" {
			c.endpoint = api
		}
		if data != "" {
			c.dataEndpoint = data
		}
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(log *slog.Logger, channelAccessToken string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		token:        channelAccessToken,
		endpoint:     defaultAPIEndpoint,
		dataEndpoint: defaultDataEndpoint,
		logger:       log.With(slog.String("service", "line")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []SendMessage `json:"messages"`
}

// ReplyMessage sends messages in response to a webhook event's reply token.
func (c *Client) ReplyMessage(ctx context.Context, replyToken string, messages []SendMessage) error {
	payload, err := json.Marshal(replyRequest{ReplyToken: replyToken, Messages: messages})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v2/bot/message/reply", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("reply rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)))
		return &PlatformError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// GetMessageContent downloads the binary content of a message (image audio
// video file) from the data endpoint.
func (c *Client) GetMessageContent(ctx context.Context, messageID string) ([]byte, error) {
	url := fmt.Sprintf("%s/v2/bot/message/%s/content", c.dataEndpoint, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build content request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch message content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &PlatformError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read message content: %w", err)
	}
	return data, nil
}
