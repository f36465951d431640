// Package llm implements the extraction client: it sends rendered page
// images to a vision-capable chat-completions API and parses the returned
// field mapping.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docufield/field-extractor/internal/config"
	"github.com/docufield/field-extractor/internal/domain"
	"github.com/docufield/field-extractor/internal/observability"
)

// Client handles communication with the extraction capability. It never
// surfaces call failures to callers of ExtractFields or DetectLanguage:
// each page degrades to an empty result so sibling pages are unaffected.
type Client struct {
	cfg        config.ExtractionConfig
	httpClient *http.Client
	logger     *observability.Logger
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart represents a part of message content (text or image).
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message.
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure.
type Request struct {
	Model               string          `json:"model"`
	Messages            []Message       `json:"messages"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	Temperature         float64         `json:"temperature"`
	ResponseFormat      *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat constrains the model output shape.
type ResponseFormat struct {
	Type string `json:"type"`
}

// Response represents the API response structure.
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice represents a single completion choice.
type Choice struct {
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// ChoiceMessage is the assistant message inside a choice.
type ChoiceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewClient creates a new extraction client from an explicit configuration
// value.
func NewClient(cfg config.ExtractionConfig, logger *observability.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithComponent("llm"),
	}
}

// ExtractFields asks the extraction capability to locate the requested
// fields on the page image and returns one ExtractedField per answered
// field, each tagged with pageNumber. Any transport or parse failure is
// logged and degrades to an empty slice; it is never returned as an error.
// Calls are not retried.
func (c *Client) ExtractFields(ctx context.Context, image *domain.PageImage, requestedFields []string, pageNumber int) []domain.ExtractedField {
	if len(requestedFields) == 0 {
		return []domain.ExtractedField{}
	}

	start := time.Now()
	req := &Request{
		Model: c.cfg.Model,
		Messages: []Message{
			{Role: "system", Content: extractionSystemPrompt},
			{Role: "user", Content: []ContentPart{
				{Type: "text", Text: buildExtractionPrompt(requestedFields)},
				{Type: "image_url", ImageURL: &ImageURL{URL: pngDataURL(image.PNG)}},
			}},
		},
		MaxCompletionTokens: c.cfg.MaxTokens,
		Temperature:         c.cfg.Temperature,
		ResponseFormat:      &ResponseFormat{Type: "json_object"},
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		c.logger.Warn().
			Int("page", pageNumber).
			Strs("fields", requestedFields).
			Err(err).
			Msg("extraction call failed, degrading to empty field set")
		return []domain.ExtractedField{}
	}

	fields, err := parseFieldResponse(content, requestedFields, pageNumber)
	if err != nil {
		c.logger.Warn().
			Int("page", pageNumber).
			Err(err).
			Msg("extraction response unparseable, degrading to empty field set")
		return []domain.ExtractedField{}
	}

	c.logger.Debug().
		Int("page", pageNumber).
		Int("fields", len(fields)).
		Dur("elapsed", time.Since(start)).
		Msg("extraction complete")
	return fields
}

// DetectLanguage identifies the dominant language on the page image and
// returns its code. Advisory: any failure defaults to "en".
func (c *Client) DetectLanguage(ctx context.Context, image *domain.PageImage) string {
	req := &Request{
		Model: c.cfg.Model,
		Messages: []Message{
			{Role: "system", Content: languageSystemPrompt},
			{Role: "user", Content: []ContentPart{
				{Type: "text", Text: languageUserPrompt},
				{Type: "image_url", ImageURL: &ImageURL{URL: pngDataURL(image.PNG)}},
			}},
		},
		MaxCompletionTokens: 10,
		Temperature:         0.1,
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("language detection failed, defaulting to en")
		return "en"
	}
	return normalizeLanguage(content)
}

// complete performs one chat-completions round trip and returns the
// assistant message content.
func (c *Client) complete(ctx context.Context, req *Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", domain.ExternalError("failed to marshal request", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", domain.ExternalError("failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", domain.ExternalError("failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", domain.ExternalError(
			fmt.Sprintf("API returned status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", domain.ExternalError("failed to decode response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", domain.ExternalError("no choices in response", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}

func pngDataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
