package image

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/hurricanerix/vizzy/internal/random"
)

// PlaceholderSize is the side of synthesized square images.
const PlaceholderSize = 512

const (
	ornamentCount     = 10
	ornamentMinRadius = 50
	ornamentMaxRadius = 150
	ornamentAlpha     = 90
	textScale         = 3
	wordsPerLine      = 4
)

// gradientPairs are top and bottom colours for placeholder backgrounds.
var gradientPairs = [][2]color.RGBA{
	{rgb(0x41, 0x58, 0xD0), rgb(0xC8, 0x50, 0xC0)},
	{rgb(0x00, 0x93, 0xE9), rgb(0x80, 0xD0, 0xC7)},
	{rgb(0x08, 0xAE, 0xEA), rgb(0x2A, 0xF5, 0x98)},
	{rgb(0xFA, 0x8B, 0xFF), rgb(0x2B, 0xD2, 0xFF)},
	{rgb(0xFF, 0x9A, 0x8B), rgb(0xFF, 0x6A, 0x88)},
}

// flatColors are emergency backgrounds, chosen by image index.
var flatColors = []color.RGBA{
	rgb(52, 152, 219),
	rgb(155, 89, 182),
	rgb(52, 73, 94),
	rgb(243, 156, 18),
	rgb(231, 76, 60),
	rgb(46, 204, 113),
}

// Synthesizer renders placeholder and emergency images locally.
type Synthesizer struct {
	rng random.Source
}

// NewSynthesizer creates a Synthesizer drawing ornament positions and
// colour pairs from rng.
func NewSynthesizer(rng random.Source) *Synthesizer {
	if rng == nil {
		rng = random.New(0)
	}
	return &Synthesizer{rng: rng}
}

// Placeholder renders a vertical gradient with translucent ellipses.
func (s *Synthesizer) Placeholder(prompt string, index int) ([]byte, error) {
	pair := gradientPairs[s.rng.Intn(len(gradientPairs))]
	img := gradient(PlaceholderSize, PlaceholderSize, pair[0], pair[1])

	ornament := pair[1]
	ornament.A = ornamentAlpha
	for i := 0; i < ornamentCount; i++ {
		cx := s.rng.Intn(PlaceholderSize)
		cy := s.rng.Intn(PlaceholderSize)
		rx := ornamentMinRadius + s.rng.Intn(ornamentMaxRadius-ornamentMinRadius+1)
		ry := ornamentMinRadius + s.rng.Intn(ornamentMaxRadius-ornamentMinRadius+1)
		fillEllipse(img, cx, cy, rx, ry, ornament)
	}

	return EncodePNG(img)
}

// Emergency renders a flat colour with lighter circles, the first words of
// the prompt and a small mark.
func (s *Synthesizer) Emergency(prompt string, index int) ([]byte, error) {
	if index < 0 {
		index = -index
	}
	base := flatColors[index%len(flatColors)]

	img := image.NewRGBA(image.Rect(0, 0, PlaceholderSize, PlaceholderSize))
	draw.Draw(img, img.Bounds(), image.NewUniform(base), image.Point{}, draw.Src)

	light := lighten(base, 30)
	third := PlaceholderSize / 3
	for i := 0; i < 3; i++ {
		fillEllipse(img, third/2+i*third, PlaceholderSize/4, 40, 40, light)
	}

	words := strings.Fields(prompt)
	lines := []string{join(words, 0, wordsPerLine), join(words, wordsPerLine, 2*wordsPerLine)}
	y := PlaceholderSize/2 - 20
	for _, line := range lines {
		if line != "" {
			drawText(img, line, y, textScale, color.White)
		}
		y += 13*textScale + 8
	}
	drawText(img, "vizzy", PlaceholderSize-40, 2, light)

	return EncodePNG(img)
}

func rgb(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 0xFF}
}

func lighten(c color.RGBA, d int) color.RGBA {
	clamp := func(v uint8) uint8 { return uint8(min(255, int(v)+d)) }
	return color.RGBA{R: clamp(c.R), G: clamp(c.G), B: clamp(c.B), A: c.A}
}

func join(words []string, from, to int) string {
	if from >= len(words) {
		return ""
	}
	return strings.Join(words[from:min(to, len(words))], " ")
}

// gradient fills a w by h image from top to bottom.
func gradient(w, h int, top, bottom color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	lerp := func(a, b uint8, y int) uint8 {
		return uint8((int(a)*(h-1-y) + int(b)*y) / max(1, h-1))
	}
	for y := 0; y < h; y++ {
		c := color.RGBA{R: lerp(top.R, bottom.R, y), G: lerp(top.G, bottom.G, y), B: lerp(top.B, bottom.B, y), A: 0xFF}
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = c.R, c.G, c.B, c.A
		}
	}
	return img
}

// fillEllipse alpha-blends c over the ellipse centred at (cx, cy).
func fillEllipse(img *image.RGBA, cx, cy, rx, ry int, c color.RGBA) {
	b := img.Bounds()
	a := int(c.A)
	blend := func(dst, src uint8) uint8 {
		return uint8((int(src)*a + int(dst)*(255-a)) / 255)
	}
	for y := max(b.Min.Y, cy-ry); y < min(b.Max.Y, cy+ry+1); y++ {
		dy := float64(y-cy) / float64(ry)
		for x := max(b.Min.X, cx-rx); x < min(b.Max.X, cx+rx+1); x++ {
			dx := float64(x-cx) / float64(rx)
			if dx*dx+dy*dy > 1 {
				continue
			}
			i := img.PixOffset(x, y)
			p := img.Pix[i : i+4 : i+4]
			p[0], p[1], p[2] = blend(p[0], c.R), blend(p[1], c.G), blend(p[2], c.B)
			p[3] = 0xFF
		}
	}
}

// drawText renders s centred horizontally with its baseline at y, scaled
// up from the 7x13 bitmap face.
func drawText(dst *image.RGBA, s string, y, scale int, c color.Color) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, s).Ceil()
	height := face.Height
	if width == 0 {
		return
	}

	small := image.NewRGBA(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(s)

	w, h := width*scale, height*scale
	if w > dst.Bounds().Dx() {
		w = dst.Bounds().Dx()
		h = height * w / width
	}
	x := (dst.Bounds().Dx() - w) / 2
	top := y - face.Ascent*scale
	draw.NearestNeighbor.Scale(dst, image.Rect(x, top, x+w, top+h), small, small.Bounds(), draw.Over, nil)
}
