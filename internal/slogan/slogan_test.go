package slogan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"double quotes", `Create a poster about "Save the Planet" in green tones`, "Save the Planet", true},
		{"first quoted span wins", `"First" and "Second"`, "First", true},
		{"single quotes", "A banner saying 'Grand Opening' in gold", "Grand Opening", true},
		{"apostrophes are not quotes", "Mom's bakery poster with 'Fresh Daily'", "Fresh Daily", true},
		{"curly quotes", "poster with “Less is More” on it", "Less is More", true},
		{"quoted span beats marker", `slogan should be great. Use "Think Big"`, "Think Big", true},
		{"slogan should be marker", "A sale poster. The slogan should be Half Price Friday. Make it red", "Half Price Friday", true},
		{"marker is case insensitive", "SLOGAN IS Fresh Coffee Daily!", "Fresh Coffee Daily", true},
		{"text says marker", "a mountain scene where the text says Climb Higher", "Climb Higher", true},
		{"text should read marker", "The text should read: Welcome Home.", "Welcome Home", true},
		{"tagline colon", "tagline: Built to Last", "Built to Last", true},
		{"empty quotes skipped", `"" then nothing`, "", false},
		{"marker with nothing after", "the slogan should be.", "", false},
		{"no slogan", "A minimalist poster of a lighthouse", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
