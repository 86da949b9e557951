package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hurricanerix/vizzy/internal/imagegen"
)

// maxInferenceImage bounds one raw image reply.
const maxInferenceImage = 32 << 20

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
}

type inferenceParameters struct {
	Width             int     `json:"width,omitempty"`
	Height            int     `json:"height,omitempty"`
	NumInferenceSteps int     `json:"num_inference_steps,omitempty"`
	GuidanceScale     float64 `json:"guidance_scale,omitempty"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
}

// HFInference calls the Hugging Face inference router for a text-to-image
// model. The router returns one raw image per call.
type HFInference struct {
	url    string
	token  string
	client *http.Client
}

// NewHFInference creates a provider for the model at url, authenticated
// with token.
func NewHFInference(url, token string) *HFInference {
	return &HFInference{url: url, token: token, client: newHTTPClient()}
}

// Generate makes req.Count sequential calls. Partial results are returned
// when at least one call succeeded; the engine pads the rest.
func (h *HFInference) Generate(ctx context.Context, req imagegen.Request) ([][]byte, error) {
	if h.token == "" {
		return nil, fmt.Errorf("%w: HF_API_TOKEN", ErrMissingCredentials)
	}

	ctx, span := tracer.Start(ctx, "hf inference generate")
	defer span.End()

	body, err := json.Marshal(inferenceRequest{
		Inputs: req.Prompt,
		Parameters: inferenceParameters{
			Width:             req.Width,
			Height:            req.Height,
			NumInferenceSteps: req.Steps,
			GuidanceScale:     req.Guidance,
			NegativePrompt:    req.NegativePrompt,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var images [][]byte
	var lastErr error
	for i := 0; i < max(1, req.Count); i++ {
		data, err := h.once(ctx, body)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		images = append(images, data)
	}
	if len(images) == 0 {
		if lastErr == nil {
			lastErr = imagegen.ErrNoImages
		}
		return nil, lastErr
	}
	return normalize(images)
}

func (h *HFInference) once(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+h.token)
	httpReq.Header.Set("Accept", "image/png")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "application/json") {
		// The router reports model loading and similar states as JSON.
		return nil, statusError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxInferenceImage))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return data, nil
}
