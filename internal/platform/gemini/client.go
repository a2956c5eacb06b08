package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

var (
	// ErrEmptyResponse is returned when Gemini answers without any text.
	ErrEmptyResponse = errors.New("empty response from Gemini")
	// ErrBlocked is returned when a response is withheld by safety filters.
	ErrBlocked = errors.New("response blocked by Gemini safety filters")
)

// Config holds the model settings.
type Config struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	TopK            int32
	MaxOutputTokens int32
}

// Client is a client for the Gemini API.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *zap.Logger
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("error creating gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	model.SetTopP(cfg.TopP)
	model.SetTopK(cfg.TopK)
	model.SetMaxOutputTokens(cfg.MaxOutputTokens)

	return &Client{client: client, model: model, logger: logger}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// InferFromImage sends the instruction together with one JPEG image.
func (c *Client) InferFromImage(ctx context.Context, instruction string, jpeg []byte) (string, error) {
	c.logger.Debug("gemini vision request", zap.Int("image_bytes", len(jpeg)))
	resp, err := c.model.GenerateContent(ctx, genai.Text(instruction), genai.ImageData("jpeg", jpeg))
	if err != nil {
		return "", fmt.Errorf("gemini err: %w", err)
	}
	return responseText(resp)
}

// InferFromPrompt sends a text-only prompt.
func (c *Client) InferFromPrompt(ctx context.Context, prompt string) (string, error) {
	c.logger.Debug("gemini text request", zap.Int("prompt_chars", len(prompt)))
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini err: %w", err)
	}
	return responseText(resp)
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", ErrBlocked
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}
	return b.String(), nil
}
