package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPGenerator calls an OpenAI-style /images/generations endpoint
// (DALL-E, or any gateway speaking the same wire format).
type HTTPGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	size       string
	quality    string
	httpClient *http.Client
}

// HTTPGeneratorOption configures an HTTPGenerator.
type HTTPGeneratorOption func(*HTTPGenerator)

// WithSize sets the requested image size. Default: "1024x1024".
func WithSize(size string) HTTPGeneratorOption {
	return func(g *HTTPGenerator) {
		g.size = size
	}
}

// WithQuality sets the requested image quality. Default: "standard".
func WithQuality(quality string) HTTPGeneratorOption {
	return func(g *HTTPGenerator) {
		g.quality = quality
	}
}

// WithHTTPClient sets the http.Client used for requests.
// Default: a client with a 60s timeout.
func WithHTTPClient(client *http.Client) HTTPGeneratorOption {
	return func(g *HTTPGenerator) {
		g.httpClient = client
	}
}

// NewHTTPGenerator creates a generator for the given base URL
// (e.g., "https://api.openai.com/v1") and model (e.g., "dall-e-3").
func NewHTTPGenerator(baseURL, apiKey, model string, opts ...HTTPGeneratorOption) *HTTPGenerator {
	g := &HTTPGenerator{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		size:    "1024x1024",
		quality: "standard",
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type generationRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size"`
	Quality string `json:"quality,omitempty"`
}

type generationResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate implements Generator.
func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generationRequest{
		Model:   g.model,
		Prompt:  prompt,
		N:       1,
		Size:    g.size,
		Quality: g.quality,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call image backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("image backend returned HTTP %d: %s", resp.StatusCode, respBody)
	}

	var parsed generationResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("image backend error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].URL == "" {
		return "", fmt.Errorf("image backend returned no image")
	}

	return parsed.Data[0].URL, nil
}
