package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultOpenAIModel is the chat model used when none is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// ErrNoChoices is returned when the chat completion has no choices.
var ErrNoChoices = errors.New("openai: empty choices")

// OpenAI writes outlines with the OpenAI chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAI narrator. Extra options are applied after
// the API key, so tests can point it at a fake server.
func NewOpenAI(apiKey, model string, opts ...option.RequestOption) *OpenAI {
	if model == "" {
		model = DefaultOpenAIModel
	}
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	}
	return &OpenAI{
		client: openai.NewClient(append(base, opts...)...),
		model:  model,
	}
}

// Generate asks the model for a JSON outline of topic.
func (o *OpenAI) Generate(ctx context.Context, topic, mood string) (Outline, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(Instructions),
			openai.UserMessage(UserPrompt(topic, mood)),
		},
	})
	if err != nil {
		return Outline{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Outline{}, ErrNoChoices
	}
	return ParseOutline(resp.Choices[0].Message.Content)
}
