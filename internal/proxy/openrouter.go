package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/archai/internal/requirements"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	listTimeout    = 30 * time.Second
)

// ErrNoImage is returned when a successful response carries no image.
var ErrNoImage = errors.New("response contained no image")

// Client requests images from OpenRouter's chat completions endpoint using
// the image output modality.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	referer    string
	title      string
}

// NewClient creates an OpenRouter client with the given API key. Image calls
// can run for tens of seconds, so no client-side timeout is set; callers
// bound them through ctx.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		referer:    "https://github.com/kalambet/archai",
		title:      "archai",
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// Image sends the prompt and reference images in one user message and
// returns the first image in the reply. It does not retry.
func (c *Client) Image(ctx context.Context, req ImageRequest) (requirements.Image, error) {
	parts := []contentPart{{Type: "text", Text: req.Prompt}}
	for _, ref := range req.References {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: ref.DataURI()}})
	}
	body, err := json.Marshal(chatRequest{
		Model:      req.Model,
		Messages:   []chatMessage{{Role: "user", Content: parts}},
		Modalities: []string{"image", "text"},
	})
	if err != nil {
		return requirements.Image{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return requirements.Image{}, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return requirements.Image{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return requirements.Image{}, &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return requirements.Image{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return requirements.Image{}, fmt.Errorf("decoding response: %w", err)
	}
	uri := firstImageURL(out)
	if uri == "" {
		return requirements.Image{}, ErrNoImage
	}
	img, err := requirements.ParseDataURI(uri)
	if err != nil {
		return requirements.Image{}, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// firstImageURL looks in message.images first, then in multi-part content.
func firstImageURL(resp chatResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	msg := resp.Choices[0].Message
	for _, p := range msg.Images {
		if p.ImageURL != nil && p.ImageURL.URL != "" {
			return p.ImageURL.URL
		}
	}
	var parts []contentPart
	if err := json.Unmarshal(msg.Content, &parts); err == nil {
		for _, p := range parts {
			if p.Type == "image_url" && p.ImageURL != nil && p.ImageURL.URL != "" {
				return p.ImageURL.URL
			}
		}
	}
	return ""
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

// IsRateLimit reports whether err came from an HTTP 429.
func IsRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

// ListModels returns the list of available models from OpenRouter.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var list ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding models: %w", err)
	}

	if list.Data == nil {
		return []Model{}, nil
	}
	return list.Data, nil
}

// SupportsImages reports whether the named model lists image output.
func (c *Client) SupportsImages(ctx context.Context, model string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m.ID != model {
			continue
		}
		for _, mod := range m.Architecture.OutputModalities {
			if mod == "image" {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)
}
