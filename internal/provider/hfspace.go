package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hurricanerix/vizzy/internal/imagegen"
)

// maxSpaceResponse bounds a Space reply (base64 images are large).
const maxSpaceResponse = 64 << 20

type spaceRequest struct {
	Prompt    string `json:"prompt"`
	NumImages int    `json:"num_images"`
}

type spaceResponse struct {
	Status string   `json:"status"`
	Images []string `json:"images"`
	Error  string   `json:"error,omitempty"`
}

// HFSpace calls a Hugging Face Space exposing POST /generate.
type HFSpace struct {
	url    string
	client *http.Client
}

// NewHFSpace creates a provider for the Space at url.
func NewHFSpace(url string) *HFSpace {
	return &HFSpace{url: strings.TrimRight(url, "/"), client: newHTTPClient()}
}

// Generate requests req.Count images in one call.
func (s *HFSpace) Generate(ctx context.Context, req imagegen.Request) ([][]byte, error) {
	ctx, span := tracer.Start(ctx, "hf space generate")
	defer span.End()

	body, err := json.Marshal(spaceRequest{Prompt: req.Prompt, NumImages: max(1, req.Count)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out spaceResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSpaceResponse)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if out.Status != "success" {
		return nil, fmt.Errorf("%w: status %q %s", ErrBadResponse, out.Status, out.Error)
	}

	images := make([][]byte, 0, len(out.Images))
	for i, encoded := range out.Images {
		data, err := decodeBase64Image(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: image %d: %v", ErrBadResponse, i, err)
		}
		images = append(images, data)
	}
	if len(images) == 0 {
		return nil, imagegen.ErrNoImages
	}
	return normalize(images)
}

// decodeBase64Image accepts plain base64 or a data URL.
func decodeBase64Image(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}
