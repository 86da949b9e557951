package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hurricanerix/vizzy/internal/imagegen"
	"github.com/hurricanerix/vizzy/internal/mood"
	"github.com/hurricanerix/vizzy/internal/random"
)

// NegativePrompt is sent with every request.
const NegativePrompt = "blurry, low quality, distorted, ugly, text, watermark"

// baseStyle is appended to art and personal prompts.
const baseStyle = "artistic, creative, atmospheric, emotional"

var (
	// ErrEmptyMessage is returned when there is nothing to build from.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNoScenes is returned when story mode has no scenes.
	ErrNoScenes = errors.New("story has no scenes")
)

// Params are the generation settings shared by all modes.
type Params struct {
	Images   int
	Width    int
	Height   int
	Steps    int
	Guidance float64

	// BusinessSteps and BusinessGuidance are the highest configured
	// quality tier, used by business mode.
	BusinessSteps    int
	BusinessGuidance float64
}

// Input is everything a builder may use.
type Input struct {
	// Message is the effective user message, already merged with any
	// clarification answer.
	Message string

	// Mood is the resolved mood: from the message, else remembered, else
	// the neutral default.
	Mood mood.Result

	// Event is the remembered life context, such as "work".
	Event string

	// FavoriteStyle is the user's most mentioned style, if any.
	FavoriteStyle string

	// Slogan is the overlay text extracted from the message. Poster mode
	// only.
	Slogan string

	// Scenes are the story scene descriptions, in order. Story mode only.
	Scenes []string
}

// Plan is the output of a builder.
type Plan struct {
	Mode  Mode
	Style string

	// Slogan is the overlay text for posters. It is never part of a prompt.
	Slogan string

	// Requests has one entry for single-image modes and one per scene for
	// story mode.
	Requests []imagegen.Request
}

// Prompt returns the first request's prompt.
func (p Plan) Prompt() string {
	if len(p.Requests) == 0 {
		return ""
	}
	return p.Requests[0].Prompt
}

// Builder builds plans for every mode.
type Builder struct {
	rng    random.Source
	params Params
}

// NewBuilder creates a Builder using rng for style choices.
func NewBuilder(rng random.Source, params Params) *Builder {
	if rng == nil {
		rng = random.New(0)
	}
	if params.Images < 1 {
		params.Images = 1
	}
	return &Builder{rng: rng, params: params}
}

// Build dispatches to the builder for mode.
func (b *Builder) Build(mode Mode, in Input) (Plan, error) {
	in.Message = strings.TrimSpace(in.Message)
	if in.Message == "" {
		return Plan{}, ErrEmptyMessage
	}

	var plan Plan
	switch mode {
	case ModeArt:
		plan = b.art(in)
	case ModePoster:
		plan = b.poster(in)
	case ModeStory:
		if len(in.Scenes) == 0 {
			return Plan{}, ErrNoScenes
		}
		plan = b.story(in)
	case ModeTransform:
		plan = b.transform(in)
	case ModeBusiness:
		plan = b.business(in)
	case ModePersonal:
		plan = b.personal(in)
	default:
		return Plan{}, fmt.Errorf("%w: %v", ErrUnknownMode, mode)
	}

	plan.Mode = mode
	return plan, nil
}

// request fills in the shared generation settings.
func (b *Builder) request(prompt, style string, count int) imagegen.Request {
	return imagegen.Request{
		Prompt:         prompt,
		NegativePrompt: NegativePrompt,
		Style:          style,
		Count:          count,
		Width:          b.params.Width,
		Height:         b.params.Height,
		Steps:          b.params.Steps,
		Guidance:       b.params.Guidance,
	}
}

func (b *Builder) single(prompt, style string) Plan {
	return Plan{Style: style, Requests: []imagegen.Request{b.request(prompt, style, b.params.Images)}}
}

func join(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
