// Package replicate generates replacement training images through the
// Replicate predictions API, conditioning on an actor's base reference image.
package replicate

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

// ErrMissingAPIToken indicates the client was configured without credentials.
var ErrMissingAPIToken = errors.New("replicate: api token is required")

// ErrPredictionFailed indicates the remote prediction ended in a terminal
// non-success state.
var ErrPredictionFailed = errors.New("replicate: prediction failed")

// Options configures the Replicate client.
type Options struct {
	APIToken     string
	BaseURL      string
	Model        string
	HTTPClient   *http.Client
	Logger       *infra.Logger
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Client performs HTTP calls to the Replicate predictions API.
type Client struct {
	apiToken     string
	baseURL      string
	model        string
	httpClient   *http.Client
	logger       *infra.Logger
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// GenerateRequest captures one image-generation call.
type GenerateRequest struct {
	Prompt        string
	BaseImage     []byte
	BaseImageMIME string
	AspectRatio   string
}

// ImageAsset is the normalized generation result.
type ImageAsset struct {
	Data   []byte
	Format string
	URL    string
}

type predictionRequest struct {
	Input predictionInput `json:"input"`
}

type predictionInput struct {
	Prompt       string `json:"prompt"`
	InputImage   string `json:"input_image,omitempty"`
	AspectRatio  string `json:"aspect_ratio,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIToken) == "" {
		return nil, ErrMissingAPIToken
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "black-forest-labs/flux-kontext-pro"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Client{
		apiToken:     strings.TrimSpace(opts.APIToken),
		baseURL:      baseURL,
		model:        model,
		httpClient:   httpClient,
		logger:       logger,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// HasCredentials reports whether an API token is configured.
func (c *Client) HasCredentials() bool { return c.apiToken != "" }

// Generate creates one prediction, polls it to a terminal state, and downloads
// the output image bytes. Remote failures are wrapped in
// domain.ErrProviderFailure so callers can distinguish them from local I/O.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*ImageAsset, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("replicate: prompt is required")
	}
	pred, err := c.createPrediction(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderFailure, err)
	}
	pred, err = c.waitForPrediction(ctx, pred)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderFailure, err)
	}
	outputURL, err := firstOutputURL(pred.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderFailure, err)
	}
	data, err := c.download(ctx, outputURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderFailure, err)
	}
	return &ImageAsset{Data: data, Format: formatFromURL(outputURL), URL: outputURL}, nil
}

func (c *Client) createPrediction(ctx context.Context, req GenerateRequest) (*predictionResponse, error) {
	input := predictionInput{
		Prompt:       req.Prompt,
		AspectRatio:  req.AspectRatio,
		OutputFormat: "jpg",
	}
	if len(req.BaseImage) > 0 {
		mime := req.BaseImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		input.InputImage = fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(req.BaseImage))
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(predictionRequest{Input: input}); err != nil {
		return nil, fmt.Errorf("replicate: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s/predictions", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("replicate: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("replicate: create prediction: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("replicate: create prediction status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var pred predictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("replicate: decode prediction: %w", err)
	}
	return &pred, nil
}

func (c *Client) waitForPrediction(ctx context.Context, pred *predictionResponse) (*predictionResponse, error) {
	deadline := time.Now().Add(c.pollTimeout)
	for {
		switch pred.Status {
		case "succeeded":
			return pred, nil
		case "failed", "canceled":
			msg := pred.Error
			if msg == "" {
				msg = pred.Status
			}
			return nil, fmt.Errorf("%w: %s", ErrPredictionFailed, msg)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("replicate: prediction %s timed out after %s", pred.ID, c.pollTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
		refreshed, err := c.getPrediction(ctx, pred)
		if err != nil {
			return nil, err
		}
		pred = refreshed
	}
}

func (c *Client) getPrediction(ctx context.Context, pred *predictionResponse) (*predictionResponse, error) {
	endpoint := pred.URLs.Get
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/predictions/%s", c.baseURL, pred.ID)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("replicate: build poll request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("replicate: poll prediction: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("replicate: poll prediction status %d", resp.StatusCode)
	}
	var refreshed predictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil {
		return nil, fmt.Errorf("replicate: decode poll response: %w", err)
	}
	return &refreshed, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("replicate: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("replicate: download output: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("replicate: download output status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("replicate: read output: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("replicate: empty output")
	}
	return data, nil
}

// firstOutputURL extracts the output URL; Replicate returns either a single
// string or a list depending on the model.
func firstOutputURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("replicate: prediction has no output")
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}
	return "", errors.New("replicate: unrecognized output shape")
}

func formatFromURL(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
