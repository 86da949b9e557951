package mood

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantKey  string
		wantBkt  Bucket
		wantDesc string
		wantOK   bool
	}{
		{"single keyword", "It was dull and grey", "dull", LowEnergy, "dull and unmotivated", true},
		{"case insensitive", "I feel HAPPY", "happy", HighEnergy, "happy and joyful", true},
		{"earliest occurrence wins", "busy morning but a peaceful evening", "busy", Chaotic, "busy and hectic", true},
		{"earliest wins regardless of vocabulary order", "peaceful then dull", "peaceful", Calm, "peaceful and calm", true},
		{"needing motivation", "It was dull and I needed motivation", "dull", LowEnergy, "dull and unmotivated", true},
		{"suffix allowed on long words", "pure tiredness", "tired", LowEnergy, "tired and exhausted", true},
		{"short words must stand alone", "plot a function", DefaultLabel, Neutral, DefaultDescription, false},
		{"no prefix match", "a crusade", DefaultLabel, Neutral, DefaultDescription, false},
		{"no match", "a red bicycle", DefaultLabel, Neutral, DefaultDescription, false},
		{"empty", "", DefaultLabel, Neutral, DefaultDescription, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.text)
			assert.Equal(t, tt.wantOK, got.Found)
			assert.Equal(t, tt.wantKey, got.Label())
			assert.Equal(t, tt.wantBkt, got.Bucket)
			assert.Equal(t, tt.wantDesc, got.Description)
		})
	}
}

func TestFromLabel(t *testing.T) {
	assert.Equal(t, Extract("hectic"), FromLabel("hectic"))

	unknown := FromLabel("nostalgic")
	assert.False(t, unknown.Found)
	assert.Equal(t, "nostalgic", unknown.Label())
	assert.Equal(t, Neutral, unknown.Bucket)

	assert.Equal(t, DefaultLabel, FromLabel("").Label())
	assert.True(t, FromLabel("").IsDefault())
	assert.False(t, unknown.IsDefault())
}

func TestPaletteAndAtmosphere(t *testing.T) {
	for _, b := range []Bucket{LowEnergy, HighEnergy, Calm, Chaotic, Neutral} {
		assert.NotEmpty(t, Palette(b), "palette for %s", b)
		assert.NotEmpty(t, Atmosphere(b), "atmosphere for %s", b)
	}
	assert.Equal(t, Palette(Neutral), Palette(Bucket("unknown")))
	assert.Equal(t, "muted desaturated palette", Extract("boring").Palette())
}

func TestDetectEvent(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Draw my day", "day"},
		{"what happened today at the office", "today"},
		{"a weekend with friends", "weekend"},
		{"a red bicycle", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectEvent(tt.text))
		})
	}
}

func TestContextPrompt(t *testing.T) {
	assert.Equal(t, "calm atmosphere related to work", ContextPrompt("calm", "work"))
	assert.Equal(t, "calm atmosphere", ContextPrompt("calm", ""))
	assert.Equal(t, "scene related to work", ContextPrompt("", "work"))
	assert.Empty(t, ContextPrompt("", ""))
}
