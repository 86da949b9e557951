package chat

import (
	"time"

	"github.com/hurricanerix/vizzy/internal/imagegen"
	"github.com/hurricanerix/vizzy/internal/prompt"
)

// Result types as seen by clients.
const (
	TypeQuestion = "question"
	TypeImage    = "image"
	TypePoster   = "poster"
	TypeStory    = "story_with_images"
	TypeError    = "error"
)

// Result is the outcome of one turn. It is one of *QuestionAnswer,
// *ImageAnswer, *StoryAnswer or *ErrorAnswer.
type Result interface {
	// Type is the wire tag for the result.
	Type() string
	isResult()
}

// Metadata describes how a visual answer was produced.
type Metadata struct {
	GenerationTime time.Duration
	Mood           string
	Mode           prompt.Mode
	// Tier is the lowest-ranked tier that produced any image in the turn.
	Tier imagegen.Tier
	// Padded counts placeholder images added to fill short results.
	Padded int
	// Degraded is set when the story outline came from the fallback
	// template.
	Degraded bool
}

// QuestionAnswer asks the user for more detail.
type QuestionAnswer struct {
	Text        string
	Suggestions []string
}

// ImageAnswer carries images for every mode except story.
type ImageAnswer struct {
	Images     [][]byte
	Reasoning  string
	PromptUsed string
	Mode       prompt.Mode
	Style      string
	// Slogan is the poster overlay text. It is never rendered into the
	// images.
	Slogan   string
	Metadata Metadata
}

// Scene is one illustrated story scene.
type Scene struct {
	Number      int
	Description string
	Image       []byte
	Tier        imagegen.Tier
}

// StoryAnswer carries an illustrated story with scenes in narrative order.
type StoryAnswer struct {
	Title     string
	Scenes    []Scene
	Reasoning string
	Style     string
	Metadata  Metadata
}

// ErrorAnswer reports a turn that produced nothing to show.
type ErrorAnswer struct {
	Text string
}

// Type implements Result.
func (*QuestionAnswer) Type() string { return TypeQuestion }

// Type implements Result. Posters are tagged separately so clients can
// render the slogan overlay.
func (a *ImageAnswer) Type() string {
	if a.Mode == prompt.ModePoster {
		return TypePoster
	}
	return TypeImage
}

// Type implements Result.
func (*StoryAnswer) Type() string { return TypeStory }

// Type implements Result.
func (*ErrorAnswer) Type() string { return TypeError }

func (*QuestionAnswer) isResult() {}
func (*ImageAnswer) isResult()    {}
func (*StoryAnswer) isResult()    {}
func (*ErrorAnswer) isResult()    {}
