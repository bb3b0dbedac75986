package proxy

import (
	"encoding/json"

	"github.com/kalambet/archai/internal/requirements"
)

// ImageRequest asks an image-capable model for a single image. References
// are sent alongside the prompt, e.g. an inspiration photo or the plan to edit.
type ImageRequest struct {
	Model      string
	Prompt     string
	References []requirements.Image
}

// chatRequest is the OpenAI-compatible body with OpenRouter's modalities
// extension.
type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Modalities []string      `json:"modalities"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
			Images  []contentPart   `json:"images"`
		} `json:"message"`
	} `json:"choices"`
}

// Model represents a model entry returned by the /v1/models endpoint.
type Model struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Architecture struct {
		OutputModalities []string `json:"output_modalities,omitempty"`
	} `json:"architecture"`
}

// ModelList is the response from /v1/models.
type ModelList struct {
	Data []Model `json:"data"`
}
