package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrGatewayUnavailable = errors.New("line channel access token not configured")

const maxErrorMessageLength = 700

type ClientConfig struct {
	ChannelAccessToken string
	BaseURL            string
	Timeout            time.Duration
	HTTPClient         *http.Client
}

// Profile is the public LINE profile of a user who has added the bot.
type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

// Client talks to the LINE Messaging API.
type Client struct {
	token      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(config ClientConfig) *Client {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "https://api.line.me"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	return &Client{
		token:      strings.TrimSpace(config.ChannelAccessToken),
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		timeout:    config.Timeout,
		httpClient: config.HTTPClient,
	}
}

func (c *Client) Available() bool {
	return c.token != ""
}

func (c *Client) GetProfile(ctx context.Context, userID string) (Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return Profile{}, errors.New("user id is required")
	}
	body, err := c.do(ctx, http.MethodGet, "/v2/bot/profile/"+url.PathEscape(userID), nil, nil)
	if err != nil {
		return Profile{}, err
	}
	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return Profile{}, fmt.Errorf("decode line profile: %w", err)
	}
	return profile, nil
}

// Push sends a text message outside any reply context. A non-empty retryKey
// lets LINE drop duplicates when the same logical push is retried; a 409 for
// an already accepted key counts as delivered.
func (c *Client) Push(ctx context.Context, to, text, retryKey string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("recipient is required")
	}
	payload := map[string]any{
		"to":       to,
		"messages": textMessages(text),
	}
	headers := map[string]string{}
	if retryKey != "" {
		headers["X-Line-Retry-Key"] = retryKey
	}
	_, err := c.do(ctx, http.MethodPost, "/v2/bot/message/push", payload, headers)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict && retryKey != "" {
		return nil
	}
	return err
}

// Reply answers an inbound event. Reply tokens are single use.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	if strings.TrimSpace(replyToken) == "" {
		return errors.New("reply token is required")
	}
	payload := map[string]any{
		"replyToken": replyToken,
		"messages":   textMessages(text),
	}
	_, err := c.do(ctx, http.MethodPost, "/v2/bot/message/reply", payload, nil)
	return err
}

func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	payload any,
	headers map[string]string,
) ([]byte, error) {
	if !c.Available() {
		return nil, ErrGatewayUnavailable
	}

	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal line payload: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpRequest, err := http.NewRequestWithContext(timeoutCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create line request: %w", err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+c.token)
	httpRequest.Header.Set("Accept", "application/json")
	if payload != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		httpRequest.Header.Set(key, value)
	}

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("line timeout: %w", err)
		}
		return nil, fmt.Errorf("line transport error: %w", err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("read line body: %w", err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		return nil, newAPIError(httpResponse.StatusCode, body)
	}
	return body, nil
}

func textMessages(text string) []map[string]string {
	return []map[string]string{{"type": "text", "text": text}}
}

// APIError is a non-2xx answer from the Messaging API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("line status %d: %s", e.StatusCode, e.Message)
}

func newAPIError(statusCode int, body []byte) *APIError {
	message := strings.TrimSpace(string(body))
	var decoded struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Message != "" {
		message = decoded.Message
	}
	if len(message) > maxErrorMessageLength {
		message = message[:maxErrorMessageLength]
	}
	return &APIError{StatusCode: statusCode, Message: message}
}
