package image

import (
	"bytes"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurricanerix/vizzy/internal/random"
)

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestSynthesizer_Placeholder(t *testing.T) {
	s := NewSynthesizer(random.New(1))

	start := time.Now()
	data, err := s.Placeholder("a cat on a mat", 0)
	elapsed := time.Since(start)
	require.NoError(t, err)

	img := decodePNG(t, data)
	assert.Equal(t, image.Rect(0, 0, PlaceholderSize, PlaceholderSize), img.Bounds())
	assert.Less(t, elapsed, time.Second)

	// Top and bottom rows differ: it is a gradient, not a flat fill
	assert.NotEqual(t, img.At(0, 0), img.At(0, PlaceholderSize-1))
}

func TestSynthesizer_PlaceholderUsesChosenPair(t *testing.T) {
	// Every ornament is centred at the right edge, leaving (0,0) as the
	// untouched top gradient colour of the chosen pair.
	s := NewSynthesizer(random.NewSequence(2, 511))
	data, err := s.Placeholder("x", 0)
	require.NoError(t, err)

	r, g, b, _ := decodePNG(t, data).At(0, 0).RGBA()
	top := gradientPairs[2][0]
	assert.Equal(t, uint32(top.R), r>>8)
	assert.Equal(t, uint32(top.G), g>>8)
	assert.Equal(t, uint32(top.B), b>>8)
}

func TestSynthesizer_Emergency(t *testing.T) {
	s := NewSynthesizer(nil)

	tests := []struct {
		name   string
		prompt string
		index  int
	}{
		{"short prompt", "cat", 0},
		{"long prompt", "a very long prompt with many many words that will not all fit", 1},
		{"empty prompt", "", 5},
		{"negative index", "x", -7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := s.Emergency(tt.prompt, tt.index)
			require.NoError(t, err)
			img := decodePNG(t, data)
			assert.Equal(t, PlaceholderSize, img.Bounds().Dx())

			// Bottom-left corner is the flat background colour
			idx := tt.index
			if idx < 0 {
				idx = -idx
			}
			want := flatColors[idx%len(flatColors)]
			r, g, b, _ := img.At(1, PlaceholderSize-2).RGBA()
			assert.Equal(t, []uint32{uint32(want.R), uint32(want.G), uint32(want.B)}, []uint32{r >> 8, g >> 8, b >> 8})
		})
	}
}

func TestLighten(t *testing.T) {
	c := lighten(rgb(250, 10, 100), 30)
	assert.Equal(t, rgb(255, 40, 130), c)
}

func TestJoin(t *testing.T) {
	words := []string{"a", "b", "c", "d", "e", "f"}
	assert.Equal(t, "a b c d", join(words, 0, 4))
	assert.Equal(t, "e f", join(words, 4, 8))
	assert.Equal(t, "", join(words, 8, 12))
}
