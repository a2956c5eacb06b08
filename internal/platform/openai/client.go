package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the chat completions endpoint.
const DefaultBaseURL = "https://api.openai.com/v1/chat/completions"

// ErrEmptyResponse is returned when the completion carries no choices.
var ErrEmptyResponse = errors.New("no content found in response")

// Config holds endpoint and model settings.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	VisionMaxTokens int
	TextMaxTokens   int
	Timeout         time.Duration
}

// Client represents a client for an OpenAI-compatible chat completions API.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// NewClient creates a new client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

// Request represents the request body.
type Request struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Message represents a message in the request.
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// Content represents the content of a message.
type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents the image URL in the content.
type ImageURL struct {
	URL string `json:"url"`
}

// Response represents the completion response.
type Response struct {
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

// Choice represents a choice in the response.
type Choice struct {
	Message ResponseMessage `json:"message"`
}

// ResponseMessage represents a message in the response.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// APIError is the error object returned alongside non-OK statuses.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// InferFromImage sends the instruction and one JPEG as a data URL.
func (c *Client) InferFromImage(ctx context.Context, instruction string, jpeg []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(jpeg)
	return c.complete(ctx, Request{
		Model: c.cfg.Model,
		Messages: []Message{{
			Role: "user",
			Content: []Content{
				{Type: "text", Text: instruction},
				{Type: "image_url", ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + encoded}},
			},
		}},
		MaxTokens: c.cfg.VisionMaxTokens,
	})
}

// InferFromPrompt sends a text-only prompt.
func (c *Client) InferFromPrompt(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, Request{
		Model: c.cfg.Model,
		Messages: []Message{{
			Role:    "user",
			Content: []Content{{Type: "text", Text: prompt}},
		}},
		MaxTokens: c.cfg.TextMaxTokens,
	})
}

func (c *Client) complete(ctx context.Context, reqBody Request) (string, error) {
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewBuffer(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("openai completion",
		zap.String("model", reqBody.Model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiResp Response
		if json.Unmarshal(body, &apiResp) == nil && apiResp.Error != nil {
			return "", fmt.Errorf("received non-OK status code %d: %s", resp.StatusCode, apiResp.Error.Message)
		}
		return "", fmt.Errorf("received non-OK status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var llmResp Response
	if err := json.NewDecoder(resp.Body).Decode(&llmResp); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(llmResp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return llmResp.Choices[0].Message.Content, nil
}
