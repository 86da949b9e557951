// Package image handles the image bytes vizzy produces and serves: PNG
// encoding, normalisation of remote model output, locally synthesized
// placeholder images and short-lived in-memory storage.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	// Registered decoders for remote model output
	_ "image/jpeg"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImageDimension bounds decoded images.
	MaxImageDimension = 4096

	// MaxOutputDimension is the longest side of a normalised image.
	MaxOutputDimension = 1024
)

var (
	// ErrInvalidDimensions indicates a non-positive or oversized image.
	ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be between 1 and 4096")
	// ErrEmptyImage indicates there were no bytes to decode.
	ErrEmptyImage = errors.New("empty image data")
)

var encoder = png.Encoder{CompressionLevel: png.BestSpeed}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 || b.Dx() > MaxImageDimension || b.Dy() > MaxImageDimension {
		return nil, ErrInvalidDimensions
	}

	var buf bytes.Buffer
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Normalize decodes PNG, JPEG or WebP bytes, downscales the image so its
// longest side is at most MaxOutputDimension and re-encodes it as PNG.
// PNG input that is already small enough is returned unchanged.
func Normalize(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxImageDimension || cfg.Height > MaxImageDimension {
		return nil, ErrInvalidDimensions
	}
	if format == "png" && cfg.Width <= MaxOutputDimension && cfg.Height <= MaxOutputDimension {
		return data, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s image: %w", format, err)
	}
	return EncodePNG(Fit(src, MaxOutputDimension))
}

// Fit scales img down, preserving aspect ratio, so neither side exceeds
// limit. Smaller images are returned as is.
func Fit(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return img
	}

	if w >= h {
		h = max(1, h*limit/w)
		w = limit
	} else {
		w = max(1, w*limit/h)
		h = limit
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
