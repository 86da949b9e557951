package provider

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hurricanerix/vizzy/internal/imagegen"
)

// DefaultGeminiModel is the image model used when none is configured.
const DefaultGeminiModel = "gemini-2.5-flash-image"

// Gemini generates images with a Gemini model that returns inline image
// data from GenerateContent.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini image provider. baseURL overrides the API
// endpoint and is empty in production.
func NewGemini(ctx context.Context, apiKey, model, baseURL string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingCredentials)
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: newHTTPClient(),
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Generate makes one GenerateContent call per image and keeps the first
// inline image of each reply.
func (g *Gemini) Generate(ctx context.Context, req imagegen.Request) ([][]byte, error) {
	ctx, span := tracer.Start(ctx, "gemini generate")
	defer span.End()

	prompt := req.Prompt
	if req.NegativePrompt != "" {
		prompt += ". Avoid: " + req.NegativePrompt
	}

	var images [][]byte
	var lastErr error
	for i := 0; i < max(1, req.Count); i++ {
		data, err := g.once(ctx, prompt)
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

func (g *Gemini) once(ctx context.Context, prompt string) ([]byte, error) {
	res, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(res.Candidates) > 0 && res.Candidates[0].Content != nil {
		for _, part := range res.Candidates[0].Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 && strings.HasPrefix(part.InlineData.MIMEType, "image/") {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, imagegen.ErrNoImages
}
