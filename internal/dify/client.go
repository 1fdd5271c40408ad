package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

// Client invokes a single Dify application. One client serves one API key
// and hence one app.
type Client struct {
	apiKey  string
	baseURL string
	user    string
	appType AppType
	verbose bool
	logger  *slog.Logger

	httpClient *http.Client
	// streamingClient has no timeout; SSE responses stay open for the
	// whole turn and are bounded by the request context instead.
	streamingClient *http.Client
}

type ClientOption func(*Client)

// WithVerbose enables request/response payload logging at debug level.
func WithVerbose(v bool) ClientOption {
	return func(c *Client) { c.verbose = v }
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func NewClient(log *slog.Logger, apiKey, baseURL, user string, appType AppType, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:          apiKey,
		baseURL:         baseURL,
		user:            user,
		appType:         appType,
		logger:          log.With(slog.String("service", "dify")),
		httpClient:      &http.Client{Timeout: 60 * time.Second},
		streamingClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke runs one conversation turn against the app. An image, when
// present, is uploaded first and attached as a file reference; an
// image-only turn gets the placeholder query ".".
func (c *Client) Invoke(ctx context.Context, req InvokeRequest) (Result, error) {
	payload := chatRequest{
		Inputs:       req.Inputs,
		Query:        req.Text,
		ResponseMode: c.appType.responseMode(),
		User:         c.user,
		// Conversation auto-naming stays off; titles are not surfaced
		// anywhere in this service.
		AutoGenerateName: false,
	}
	if payload.Inputs == nil {
		payload.Inputs = map[string]any{}
	}
	if req.ConversationID != "" && !req.StartAsNew {
		payload.ConversationID = req.ConversationID
	}

	if len(req.Image) > 0 {
		fileID, err := c.uploadFile(ctx, req.Image)
		if err != nil {
			return Result{}, fmt.Errorf("upload image: %w", err)
		}
		payload.Files = []fileRef{{
			Type:           "image",
			TransferMethod: "local_file",
			UploadFileID:   fileID,
		}}
		if payload.Query == "" {
			payload.Query = "."
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat request: %w", err)
	}
	if c.verbose {
		c.logger.Debug("chat request", slog.String("payload", string(body)))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat-messages", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	hc := c.httpClient
	if c.appType.responseMode() == "streaming" {
		httpReq.Header.Set("Accept", "text/event-stream")
		hc = c.streamingClient
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		c.logger.Error("chat request rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("body", truncate(string(raw), 500)))
		return Result{}, &BackendError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	switch c.appType {
	case AppTypeAgent:
		return c.decodeAgentStream(resp.Body)
	case AppTypeChatbot:
		return c.decodeBlocking(resp.Body)
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrNotImplemented, c.appType)
	}
}

func (c *Client) decodeBlocking(body io.Reader) (Result, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return Result{}, fmt.Errorf("read chat response: %w", err)
	}
	if c.verbose {
		c.logger.Debug("chat response", slog.String("payload", truncate(string(raw), 2000)))
	}

	var br blockingResponse
	if err := json.Unmarshal(raw, &br); err != nil {
		return Result{}, fmt.Errorf("decode chat response: %w", err)
	}

	data := map[string]any{}
	if rr, ok := br.Metadata["retriever_resources"]; ok {
		data["retriever_resources"] = rr
	}
	return Result{
		ConversationID: br.ConversationID,
		Text:           br.Answer,
		Data:           data,
	}, nil
}

// uploadFile pushes image bytes to /files/upload and returns the file id.
func (c *Client) uploadFile(ctx context.Context, image []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="image.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", fmt.Errorf("create multipart: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("write image part: %w", err)
	}
	if err := mw.WriteField("user", c.user); err != nil {
		return "", fmt.Errorf("write user field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return "", &BackendError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var ur uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return ur.ID, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
