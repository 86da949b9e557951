// Package narrative produces short story outlines for story mode.
//
// A Generator turns a topic into a title and an ordered list of scene
// descriptions. Remote generators (Ollama, OpenAI) can fail or return
// nonsense; Resilient wraps any Generator and degrades to the local
// Template so story mode always has scenes to illustrate.
package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SceneCount is the number of scenes a story is broken into.
const SceneCount = 3

var (
	// ErrEmptyOutline is returned when a generator produced no usable scenes.
	ErrEmptyOutline = errors.New("outline has no scenes")
	// ErrEmptyTopic is returned when there is nothing to write about.
	ErrEmptyTopic = errors.New("story topic is empty")
)

// Outline is a story title and its scenes in narrative order.
type Outline struct {
	Title  string   `json:"title" jsonschema:"description=Short story title"`
	Scenes []string `json:"scenes" jsonschema:"minItems=3,maxItems=3,description=One vivid sentence per scene in story order"`
}

// Generator writes an outline for topic in the given mood.
type Generator interface {
	Generate(ctx context.Context, topic, mood string) (Outline, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, topic, mood string) (Outline, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, topic, mood string) (Outline, error) {
	return f(ctx, topic, mood)
}

// Clean trims every scene, drops empty ones, and fills a missing title
// from topic. It returns ErrEmptyOutline if no scene is left.
func (o Outline) Clean(topic string) (Outline, error) {
	scenes := make([]string, 0, len(o.Scenes))
	for _, s := range o.Scenes {
		if s = strings.TrimSpace(s); s != "" {
			scenes = append(scenes, s)
		}
	}
	if len(scenes) == 0 {
		return Outline{}, ErrEmptyOutline
	}

	title := strings.TrimSpace(o.Title)
	if title == "" {
		title = Title(topic)
	}
	return Outline{Title: title, Scenes: scenes}, nil
}

// Title derives a title from topic: the first three words followed by an
// ellipsis, or the whole topic when it is short. Only the first letter is
// upper case.
func Title(topic string) string {
	words := strings.Fields(topic)
	var title string
	if len(words) > 3 {
		title = strings.TrimRight(strings.Join(words[:3], " "), ".!?,;:") + "..."
	} else {
		title = strings.Join(words, " ")
	}
	return capitalize(title)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// ParseOutline decodes a model reply into an Outline. Markdown code fences
// around the JSON are tolerated.
func ParseOutline(raw string) (Outline, error) {
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	if start := strings.Index(body, "{"); start > 0 {
		body = body[start:]
	}
	if end := strings.LastIndex(body, "}"); end >= 0 && end < len(body)-1 {
		body = body[:end+1]
	}

	var o Outline
	if err := json.Unmarshal([]byte(body), &o); err != nil {
		return Outline{}, fmt.Errorf("failed to parse outline: %w", err)
	}
	return o, nil
}

// Instructions is the system prompt shared by the model-backed generators.
const Instructions = `You write very short illustrated stories.
Reply with JSON only, no prose, in this exact shape:
{"title": "<short title>", "scenes": ["<scene 1>", "<scene 2>", "<scene 3>"]}
Each scene is one vivid sentence that an illustrator could draw.`

// UserPrompt returns the user message asking for an outline of topic.
func UserPrompt(topic, mood string) string {
	return fmt.Sprintf("Write a %d-scene story about: %s\nThe overall mood is %s.", SceneCount, topic, mood)
}
