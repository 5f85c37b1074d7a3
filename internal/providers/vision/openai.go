// Package vision classifies composite training-image grids through an
// OpenAI-compatible vision chat-completions API.
package vision

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

	"github.com/rs/zerolog"

	"actorset/internal/domain"
	"actorset/internal/infra"
)

// ErrMissingAPIKey indicates the client was configured without credentials.
var ErrMissingAPIKey = errors.New("vision: api key is required")

// Options configures the OpenAI vision client.
type Options struct {
	APIKey         string
	Model          string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	MaxAttempts    int
	InitialBackoff time.Duration
}

// Client performs the composite evaluation call against a hosted
// vision-capable chat completion API.
type Client struct {
	apiKey         string
	model          string
	baseURL        string
	httpClient     *http.Client
	logger         *infra.Logger
	maxAttempts    int
	initialBackoff time.Duration
}

// Verdict is the model's judgement of one numbered image in the composite.
// ImageNumber is 1-based in drawing order.
type Verdict struct {
	ImageNumber  int
	Category     domain.Category
	QualityScore int
}

// Result is the validated evaluation response.
type Result struct {
	Verdicts []Verdict
	Analysis string
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// evaluationPayload is the strict schema the model must produce. Anything
// failing validation is treated as a malformed response and retried; an
// untyped map never leaves this package.
type evaluationPayload struct {
	Images []struct {
		ImageNumber  int    `json:"image_number"`
		Category     string `json:"category"`
		QualityScore int    `json:"quality_score"`
	} `json:"images"`
	Analysis string `json:"analysis"`
}

const defaultVisionModel = "gpt-4o"

// NewClient constructs a vision client with sane defaults.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultVisionModel
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := opts.InitialBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Client{
		apiKey:         strings.TrimSpace(opts.APIKey),
		model:          model,
		baseURL:        baseURL,
		httpClient:     httpClient,
		logger:         logger,
		maxAttempts:    maxAttempts,
		initialBackoff: backoff,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Evaluate submits one composite JPEG containing imageCount numbered
// thumbnails and returns the validated per-image verdicts. Malformed or
// schema-violating responses are retried with backoff; once attempts exhaust
// the error wraps domain.ErrEvaluation so callers can mark the actor failed
// without guessing a classification.
func (c *Client) Evaluate(ctx context.Context, composite []byte, imageCount int) (*Result, error) {
	if imageCount <= 0 {
		return nil, fmt.Errorf("%w: no images to evaluate", domain.ErrEvaluation)
	}
	var result *Result
	err := infra.Retry(ctx, c.maxAttempts, c.initialBackoff, func(ctx context.Context) error {
		res, err := c.evaluateOnce(ctx, composite, imageCount)
		if err != nil {
			c.logger.Warn().Err(err).Int("image_count", imageCount).Msg("vision: evaluation attempt failed")
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEvaluation, err)
	}
	return result, nil
}

func (c *Client) evaluateOnce(ctx context.Context, composite []byte, imageCount int) (*Result, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(composite)
	payload := chatRequest{
		Model:          c.model,
		Temperature:    0.1,
		ResponseFormat: &chatFormat{Type: "json_object"},
		MaxTokens:      4096,
		Messages: []chatMessage{
			{
				Role: "system",
				Content: []chatContent{
					{Type: "text", Text: "You are a meticulous training-data reviewer that only responds with valid JSON."},
				},
			},
			{
				Role: "user",
				Content: []chatContent{
					{Type: "text", Text: buildInstruction(imageCount)},
					{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL, Detail: "high"}},
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, infra.Permanent(fmt.Errorf("encode request: %w", err))
	}
	endpoint := fmt.Sprintf("%s/chat/completions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, infra.Permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, infra.Permanent(fmt.Errorf("vision api status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 300 {
		// Rate limits and server errors are transient.
		return nil, fmt.Errorf("vision api status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("vision api error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return nil, errors.New("empty response content")
	}
	return parseEvaluation(text, imageCount)
}

// parseEvaluation validates the model output against the expected schema.
func parseEvaluation(text string, imageCount int) (*Result, error) {
	var payload evaluationPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("malformed evaluation JSON: %w", err)
	}
	if len(payload.Images) != imageCount {
		return nil, fmt.Errorf("evaluation covered %d images, want %d", len(payload.Images), imageCount)
	}
	seen := make(map[int]bool, imageCount)
	verdicts := make([]Verdict, 0, imageCount)
	for _, img := range payload.Images {
		if img.ImageNumber < 1 || img.ImageNumber > imageCount {
			return nil, fmt.Errorf("image_number %d out of range 1..%d", img.ImageNumber, imageCount)
		}
		if seen[img.ImageNumber] {
			return nil, fmt.Errorf("duplicate image_number %d", img.ImageNumber)
		}
		seen[img.ImageNumber] = true
		category, ok := domain.ParseCategory(img.Category)
		if !ok {
			return nil, fmt.Errorf("unknown category %q for image %d", img.Category, img.ImageNumber)
		}
		if img.QualityScore < 1 || img.QualityScore > 10 {
			return nil, fmt.Errorf("quality_score %d out of range 1..10 for image %d", img.QualityScore, img.ImageNumber)
		}
		verdicts = append(verdicts, Verdict{
			ImageNumber:  img.ImageNumber,
			Category:     category,
			QualityScore: img.QualityScore,
		})
	}
	return &Result{Verdicts: verdicts, Analysis: strings.TrimSpace(payload.Analysis)}, nil
}

func buildInstruction(imageCount int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The attached image is a grid of %d numbered training photos of the same person. ", imageCount)
	sb.WriteString("Images are numbered 1 through ")
	fmt.Fprintf(&sb, "%d left to right, top to bottom. ", imageCount)
	sb.WriteString("Assign every image to exactly one category:\n")
	sb.WriteString("- \"photorealistic\": looks like a real photograph, natural light and skin texture.\n")
	sb.WriteString("- \"monochrome-stylized\": black-and-white or single-tone artistic rendering (ink, charcoal, pencil, manga).\n")
	sb.WriteString("- \"color-stylized\": colored but clearly non-photographic rendering (anime, watercolor, comic, 3D render).\n")
	sb.WriteString("Also rate each image's quality as LoRA training data from 1 (unusable) to 10 (excellent), ")
	sb.WriteString("considering sharpness, face visibility, and framing.\n")
	sb.WriteString("Respond with a single JSON object of this exact shape and nothing else:\n")
	sb.WriteString(`{"images":[{"image_number":1,"category":"photorealistic","quality_score":7}],"analysis":"brief reasoning"}`)
	sb.WriteString("\nEvery image number must appear exactly once.")
	return sb.String()
}
