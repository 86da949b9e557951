package narrative

import (
	"context"
	"fmt"
	"strings"

	"github.com/hurricanerix/vizzy/internal/random"
)

// Story kinds picked from topic keywords.
const (
	KindAdventure     = "adventure"
	KindRomance       = "romance"
	KindMystery       = "mystery"
	KindInspirational = "inspirational"
	KindFantasy       = "fantasy"
	KindDefault       = "default"
)

// kindKeywords is checked in order; the first kind with a matching
// keyword wins.
var kindKeywords = []struct {
	kind     string
	keywords []string
}{
	{KindAdventure, []string{"adventure", "journey", "quest", "explore"}},
	{KindRomance, []string{"love", "romance", "heart", "together"}},
	{KindMystery, []string{"mystery", "secret", "detective", "puzzle"}},
	{KindInspirational, []string{"inspire", "dream", "hope", "motivate"}},
	{KindFantasy, []string{"magic", "dragon", "fantasy", "wizard"}},
}

// openers are format strings taking the mood label.
var openers = map[string][]string{
	KindAdventure: {
		"Once upon a time, in a %s land far away...",
		"The hero embarked on a %s journey...",
		"An unexpected adventure began on a %s morning...",
	},
	KindRomance: {
		"Two hearts met under a %s sky...",
		"A %s love story unfolded...",
		"In the %s glow of twilight, they found each other...",
	},
	KindMystery: {
		"A %s secret waited to be discovered...",
		"The %s night held many secrets...",
		"Something %s was about to happen...",
	},
	KindInspirational: {
		"A %s journey of self-discovery began...",
		"She found strength in the %s moments...",
		"The %s path led to unexpected places...",
	},
	KindFantasy: {
		"In a realm of %s magic...",
		"The %s prophecy spoke of a hero...",
		"Magic filled the %s air...",
	},
	KindDefault: {
		"In a %s setting, our story begins...",
		"The %s atmosphere set the stage...",
		"A %s tale unfolded before our eyes...",
	},
}

// Template writes outlines locally from fixed templates. It never fails
// for a non-empty topic.
type Template struct {
	rng random.Source
}

// NewTemplate creates a Template using rng to pick openers.
func NewTemplate(rng random.Source) *Template {
	if rng == nil {
		rng = random.New(0)
	}
	return &Template{rng: rng}
}

// Generate returns a three-scene outline for topic.
func (t *Template) Generate(ctx context.Context, topic, mood string) (Outline, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Outline{}, ErrEmptyTopic
	}
	if mood == "" {
		mood = "neutral"
	}

	opener := fmt.Sprintf(random.Pick(t.rng, openers[Kind(topic)]), mood)

	return Outline{
		Title: Title(topic),
		Scenes: []string{
			opener + " " + topic,
			fmt.Sprintf("The %s journey continued as new challenges emerged.", mood),
			fmt.Sprintf("In the end, the %s experience left everyone transformed.", mood),
		},
	}, nil
}

// Kind classifies topic into one of the story kinds.
func Kind(topic string) string {
	lower := strings.ToLower(topic)
	for _, k := range kindKeywords {
		for _, w := range k.keywords {
			if strings.Contains(lower, w) {
				return k.kind
			}
		}
	}
	return KindDefault
}
