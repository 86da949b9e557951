// Package imagegen acquires images for a generation request through an
// ordered chain of tiers: a primary remote model with retries, a secondary
// remote model, a locally synthesized placeholder and a last-resort
// emergency image. Acquire always returns images unless local synthesis
// itself is broken.
package imagegen

import (
	"context"
	"errors"
	"time"
)

// ErrNoImages is returned by backends that answered without images.
var ErrNoImages = errors.New("backend returned no images")

// Request is the normalized unit of work for the engine. It is passed by
// value and never modified after construction.
type Request struct {
	Prompt         string
	NegativePrompt string
	Style          string

	// Count is the number of image variations requested.
	Count int

	Width  int
	Height int

	// Steps and Guidance are passed through to the remote model.
	Steps    int
	Guidance float64
}

// Tier identifies which strategy produced an outcome.
type Tier int

// Tiers in the order they are attempted.
const (
	TierPrimary Tier = iota
	TierSecondary
	TierPlaceholder
	TierEmergency
	// TierNone means no tier produced an image.
	TierNone
)

func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierPlaceholder:
		return "placeholder"
	case TierEmergency:
		return "emergency"
	default:
		return "none"
	}
}

// Outcome is the result of Acquire.
type Outcome struct {
	// Images are encoded image bytes in request order.
	Images [][]byte

	// Tier is the tier that produced the images. Padding added to reach
	// Request.Count does not change it.
	Tier Tier

	// Padded is the number of placeholder images appended because the
	// producing tier returned fewer than requested.
	Padded int

	// Elapsed is the total time spent acquiring.
	Elapsed time.Duration
}

// OK reports whether the outcome carries at least one image.
func (o Outcome) OK() bool {
	return len(o.Images) > 0
}

// Backend is a remote image model.
type Backend interface {
	// Generate returns up to req.Count encoded images. It must honour
	// ctx cancellation.
	Generate(ctx context.Context, req Request) ([][]byte, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, req Request) ([][]byte, error)

// Generate calls f.
func (f BackendFunc) Generate(ctx context.Context, req Request) ([][]byte, error) {
	return f(ctx, req)
}

// Synthesizer renders images locally without external dependencies.
type Synthesizer interface {
	// Placeholder renders a decorative image. index varies the design.
	Placeholder(prompt string, index int) ([]byte, error)
	// Emergency renders a flat image with prompt text on it.
	Emergency(prompt string, index int) ([]byte, error)
}
