package prompt

import (
	"strings"

	"github.com/hurricanerix/vizzy/internal/mood"
	"github.com/hurricanerix/vizzy/internal/random"
)

// Style vocabularies per mode.
var (
	ArtStyles    = []string{"impressionist", "expressionist", "abstract", "surreal"}
	PosterStyles = []string{"minimalist", "bold", "elegant", "modern"}
	StoryStyles  = []string{"cinematic", "illustrated", "children's-book"}
)

// BusinessStyle is the fixed business mode style.
const BusinessStyle = "professional clean corporate"

// DefaultTransformStyle is used when the message names no style.
const DefaultTransformStyle = "reimagined"

// transformStyles maps style keywords to the style used in the prompt.
// Longer phrases come first so "pencil sketch" wins over "sketch".
var transformStyles = []struct{ keyword, style string }{
	{"oil painting", "oil painting"},
	{"pencil sketch", "pencil sketch"},
	{"watercolour", "watercolor"},
	{"watercolor", "watercolor"},
	{"charcoal", "charcoal drawing"},
	{"sketch", "sketch"},
	{"cyberpunk", "cyberpunk"},
	{"pixel art", "pixel art"},
	{"pop art", "pop art"},
	{"anime", "anime"},
	{"steampunk", "steampunk"},
	{"vaporwave", "vaporwave"},
	{"ukiyo-e", "ukiyo-e"},
	{"mosaic", "mosaic"},
}

func (b *Builder) art(in Input) Plan {
	style := random.Pick(b.rng, ArtStyles)
	palette := in.Mood.Palette()

	if isAboutDay(in.Message) {
		return b.single(join("Artistic interpretation of a day", in.Mood.Label()+" mood", style+" style", palette), style)
	}
	return b.single(join(in.Message, style+" style", palette, baseStyle), style)
}

// poster builds a text-free background. The slogan is removed from the
// subject and returned separately for client-side overlay.
func (b *Builder) poster(in Input) Plan {
	style := random.Pick(b.rng, PosterStyles)
	subject := stripSlogan(in.Message, in.Slogan)
	p := b.single(join(style+" poster background", subject, in.Mood.Label()+" atmosphere", "no text, no lettering"), style)
	p.Slogan = in.Slogan
	return p
}

var sloganQuotes = [][2]string{{`"`, `"`}, {"'", "'"}, {"\u201c", "\u201d"}, {"\u2018", "\u2019"}}

// stripSlogan removes a quoted slogan from message.
func stripSlogan(message, slogan string) string {
	if slogan == "" {
		return message
	}
	for _, q := range sloganQuotes {
		quoted := q[0] + slogan + q[1]
		if strings.Contains(message, quoted) {
			return strings.Join(strings.Fields(strings.Replace(message, quoted, "", 1)), " ")
		}
	}
	return message
}

// story builds one single-image request per scene, sharing one style and
// mood across the whole narrative.
func (b *Builder) story(in Input) Plan {
	style := random.Pick(b.rng, StoryStyles)
	p := Plan{Style: style}
	for _, scene := range in.Scenes {
		p.Requests = append(p.Requests, b.request(ScenePrompt(scene, style, in.Mood), style, 1))
	}
	return p
}

// ScenePrompt renders one story scene prompt. The bucket's atmosphere keeps
// the scenes visually consistent.
func ScenePrompt(scene, style string, m mood.Result) string {
	return join(scene, style, m.Label()+" atmosphere", mood.Atmosphere(m.Bucket))
}

func (b *Builder) transform(in Input) Plan {
	style := TransformStyle(in.Message)
	return b.single(join(in.Message, "transformed into "+style+" style", in.Mood.Label()+" atmosphere"), style)
}

// TransformStyle returns the style named in message, or
// DefaultTransformStyle. The earliest mention wins.
func TransformStyle(message string) string {
	lower := strings.ToLower(message)
	best, style := -1, DefaultTransformStyle
	for _, t := range transformStyles {
		idx := strings.Index(lower, t.keyword)
		if idx >= 0 && (best < 0 || idx < best) {
			best, style = idx, t.style
		}
	}
	return style
}

func (b *Builder) business(in Input) Plan {
	p := b.single(join(in.Message, BusinessStyle+" business visual", in.Mood.Label()+" atmosphere"), BusinessStyle)
	// Never below the general quality, even when business settings are
	// unset or lower.
	p.Requests[0].Steps = max(b.params.Steps, b.params.BusinessSteps)
	p.Requests[0].Guidance = max(b.params.Guidance, b.params.BusinessGuidance)
	return p
}

// personal draws on remembered context. Without any mood it falls back to
// the art defaults.
func (b *Builder) personal(in Input) Plan {
	if in.Mood.IsDefault() {
		return b.art(in)
	}

	style := baseStyle
	if in.FavoriteStyle != "" {
		style = join(baseStyle, in.FavoriteStyle)
	}
	p := b.single(join(in.Message, mood.ContextPrompt(in.Mood.Label(), in.Event), style), in.FavoriteStyle)
	return p
}

func isAboutDay(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "my day") || strings.Contains(lower, "today")
}
