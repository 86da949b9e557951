package provider

import (
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hurricanerix/vizzy/internal/imagegen"
)

// DefaultOpenAIModel is the image model used when none is configured.
const DefaultOpenAIModel = "dall-e-3"

// OpenAI generates images with the OpenAI Images API.
type OpenAI struct {
	client openai.Client
	model  string
	hasKey bool
}

// NewOpenAI creates an OpenAI image provider. Extra options are applied
// last so tests can point it at a fake server.
func NewOpenAI(apiKey, model string, opts ...option.RequestOption) *OpenAI {
	if model == "" {
		model = DefaultOpenAIModel
	}
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(newHTTPClient()),
		// Retries belong to the engine's policy.
		option.WithMaxRetries(0),
	}
	return &OpenAI{
		client: openai.NewClient(append(base, opts...)...),
		model:  model,
		hasKey: apiKey != "",
	}
}

// Generate requests one image per call, since some models only accept
// n=1. Partial results are returned when at least one call succeeded.
func (o *OpenAI) Generate(ctx context.Context, req imagegen.Request) ([][]byte, error) {
	if !o.hasKey {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingCredentials)
	}

	ctx, span := tracer.Start(ctx, "openai images generate")
	defer span.End()

	var images [][]byte
	var lastErr error
	for i := 0; i < max(1, req.Count); i++ {
		data, err := o.once(ctx, req.Prompt)
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

func (o *OpenAI) once(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(o.model),
		N:              openai.Int(1),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
		Size:           openai.ImageGenerateParamsSize1024x1024,
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, imagegen.ErrNoImages
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return data, nil
}
