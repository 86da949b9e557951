package chat

import (
	"fmt"

	"github.com/hurricanerix/vizzy/internal/prompt"
	"github.com/hurricanerix/vizzy/internal/random"
)

// previewLen is how much of the message is quoted in reasoning text.
const previewLen = 30

// improvisedNote is appended when the story outline came from the
// fallback template.
const improvisedNote = "The story outline was improvised from a template."

// reasoningTemplates take (preview, mood) in that order; templates that do
// not quote the message use explicit argument indexes.
var reasoningTemplates = map[prompt.Mode][]string{
	prompt.ModeArt: {
		"As an artist, I've interpreted '%s' through a %s lens",
		"Your vision of '%s' inspired these %s artistic interpretations",
		"I've translated '%s' into %s visual poetry",
	},
	prompt.ModePoster: {
		"For this poster, I've designed a %[2]s background that complements your message",
		"The composition uses %[2]s tones to create visual impact",
		"This %[2]s design provides the perfect canvas for your text",
	},
	prompt.ModeStory: {
		"Your story about '%s' unfolds in three %s chapters",
		"I've crafted a %[2]s narrative arc based on your vision",
		"Each scene builds on the %[2]s atmosphere to tell your tale",
	},
	prompt.ModePersonal: {
		"I've interpreted your request through a %[2]s lens, focusing on '%[1]s'",
		"Drawing from '%s', I've emphasized %s elements",
		"The %[2]s atmosphere you described guided my creative direction",
	},
}

var insights = []string{
	"Notice how the lighting creates depth and atmosphere.",
	"The composition guides your eye through the scene.",
	"The color harmony reinforces the emotional tone.",
	"The contrast creates visual interest and drama.",
}

// Reasoner writes the sentence explaining a result.
type Reasoner struct {
	rng random.Source
}

// NewReasoner creates a Reasoner using rng to pick templates.
func NewReasoner(rng random.Source) *Reasoner {
	if rng == nil {
		rng = random.New(0)
	}
	return &Reasoner{rng: rng}
}

// Explain returns reasoning for a result of mode built from message in
// mood. Transform and business use the personal templates.
func (r *Reasoner) Explain(mode prompt.Mode, message, mood string) string {
	templates, ok := reasoningTemplates[mode]
	if !ok {
		templates = reasoningTemplates[prompt.ModePersonal]
	}
	base := fmt.Sprintf(random.Pick(r.rng, templates), preview(message), mood)
	return base + ". " + random.Pick(r.rng, insights)
}

func preview(message string) string {
	runes := []rune(message)
	if len(runes) <= previewLen {
		return message
	}
	return string(runes[:previewLen]) + "..."
}
