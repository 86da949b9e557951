// Package mood maps free text to a coarse mood bucket and a descriptive
// phrase. Matching is case-insensitive keyword search over a fixed
// vocabulary; when several keywords occur, the one appearing earliest in
// the text wins.
package mood

import (
	"strings"
)

// Bucket is a canonical mood grouping.
type Bucket string

// Mood buckets
const (
	LowEnergy  Bucket = "low-energy"
	HighEnergy Bucket = "high-energy"
	Calm       Bucket = "calm"
	Chaotic    Bucket = "chaotic"
	Neutral    Bucket = "neutral/vibrant"
)

// DefaultLabel is the mood label used when nothing matches.
const DefaultLabel = "vibrant"

// DefaultDescription is the best-effort description used when a
// clarification answer carries no recognisable mood.
const DefaultDescription = "thoughtful and reflective"

// term is one vocabulary entry.
type term struct {
	keyword     string
	bucket      Bucket
	description string
}

// vocabulary lists every recognised mood keyword. When two keywords start
// at the same offset the longer one wins.
var vocabulary = []term{
	{"dull", LowEnergy, "dull and unmotivated"},
	{"boring", LowEnergy, "boring and uneventful"},
	{"tired", LowEnergy, "tired and exhausted"},
	{"exhausted", LowEnergy, "tired and exhausted"},
	{"sad", LowEnergy, "sad and melancholic"},
	{"motivation", LowEnergy, "needing motivation"},
	{"energetic", HighEnergy, "energetic and vibrant"},
	{"happy", HighEnergy, "happy and joyful"},
	{"exciting", HighEnergy, "exciting and fun"},
	{"excited", HighEnergy, "excited and lively"},
	{"fun", HighEnergy, "exciting and fun"},
	{"peaceful", Calm, "peaceful and calm"},
	{"calm", Calm, "calm and relaxed"},
	{"relaxed", Calm, "calm and relaxed"},
	{"serene", Calm, "serene and still"},
	{"busy", Chaotic, "busy and hectic"},
	{"hectic", Chaotic, "busy and hectic"},
	{"stressful", Chaotic, "stressful and tense"},
	{"chaotic", Chaotic, "chaotic and restless"},
	{"challenging", Chaotic, "challenging but rewarding"},
}

// palettes maps buckets to the colour-palette descriptor used by art mode.
var palettes = map[Bucket]string{
	LowEnergy:  "muted desaturated palette",
	HighEnergy: "vivid saturated palette",
	Calm:       "soft pastel palette",
	Chaotic:    "clashing high-contrast palette",
	Neutral:    "balanced vibrant palette",
}

// atmospheres describe how each bucket should feel in a story scene.
var atmospheres = map[Bucket]string{
	LowEnergy:  "subdued and quiet with low contrast",
	HighEnergy: "dynamic and vibrant with movement",
	Calm:       "calm and serene with gentle transitions",
	Chaotic:    "chaotic and busy with overlapping elements",
	Neutral:    "balanced and atmospheric",
}

// Result is the outcome of mood extraction.
type Result struct {
	// Found is false when no keyword matched and the defaults were used.
	Found bool
	// Keyword is the matched vocabulary term, or DefaultLabel.
	Keyword string
	// Bucket is the canonical grouping.
	Bucket Bucket
	// Description is a short phrase such as "dull and unmotivated".
	Description string
}

// Label is the short mood word used in prompts and metadata.
func (r Result) Label() string {
	return r.Keyword
}

// IsDefault reports whether r is the neutral fallback used when no mood
// was found or remembered.
func (r Result) IsDefault() bool {
	return !r.Found && r.Keyword == DefaultLabel
}

// Palette returns the colour-palette descriptor for the bucket.
func (r Result) Palette() string {
	return Palette(r.Bucket)
}

// Extract scans text for mood keywords. The earliest occurrence wins.
// When nothing matches, Found is false and the neutral defaults are
// returned.
func Extract(text string) Result {
	lower := strings.ToLower(text)

	best := -1
	var match term
	for _, t := range vocabulary {
		idx := indexWord(lower, t.keyword)
		if idx < 0 {
			continue
		}
		if best < 0 || idx < best || (idx == best && len(t.keyword) > len(match.keyword)) {
			best = idx
			match = t
		}
	}

	if best < 0 {
		return Result{
			Keyword:     DefaultLabel,
			Bucket:      Neutral,
			Description: DefaultDescription,
		}
	}

	return Result{
		Found:       true,
		Keyword:     match.keyword,
		Bucket:      match.bucket,
		Description: match.description,
	}
}

// FromLabel rebuilds a Result from a previously remembered keyword.
// Unknown labels yield a neutral result carrying the label unchanged.
func FromLabel(label string) Result {
	for _, t := range vocabulary {
		if t.keyword == label {
			return Result{Found: true, Keyword: t.keyword, Bucket: t.bucket, Description: t.description}
		}
	}
	if label == "" {
		label = DefaultLabel
	}
	return Result{Keyword: label, Bucket: Neutral, Description: DefaultDescription}
}

// HasMood reports whether text contains any mood keyword.
func HasMood(text string) bool {
	return Extract(text).Found
}

// Palette returns the colour-palette descriptor for a bucket.
func Palette(b Bucket) string {
	if p, ok := palettes[b]; ok {
		return p
	}
	return palettes[Neutral]
}

// Atmosphere returns the scene atmosphere descriptor for a bucket.
func Atmosphere(b Bucket) string {
	if a, ok := atmospheres[b]; ok {
		return a
	}
	return atmospheres[Neutral]
}

// indexWord returns the byte offset of the first occurrence of word in s
// that starts on a word boundary, or -1. Suffixes are allowed for longer
// words so "tired" matches "tiredness"; words of three letters or fewer
// must stand alone so "fun" does not match "function".
func indexWord(s, word string) int {
	from := 0
	for {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return -1
		}
		pos := from + i
		end := pos + len(word)
		startOK := pos == 0 || !isLetter(s[pos-1])
		endOK := len(word) > 3 || end == len(s) || !isLetter(s[end])
		if startOK && endOK {
			return pos
		}
		from = pos + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
