// Package prompt turns a chat message into image generation requests.
//
// Each of the six generation modes has its own builder. Builders are pure
// apart from the injected random source used for style selection; they
// never call the image engine themselves, so story mode can return one
// request per scene from a single turn.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode is returned by ParseMode for unrecognised names.
var ErrUnknownMode = errors.New("unknown mode")

// Mode is one of the fixed generation strategies.
type Mode int

// Modes. The zero value is not a mode, so an unset Mode is rejected
// rather than treated as personal.
const (
	ModeArt Mode = iota + 1
	ModePoster
	ModeStory
	ModeTransform
	ModeBusiness
	ModePersonal
)

// Modes lists every mode.
var Modes = []Mode{ModeArt, ModePoster, ModeStory, ModeTransform, ModeBusiness, ModePersonal}

func (m Mode) String() string {
	switch m {
	case ModeArt:
		return "art"
	case ModePoster:
		return "poster"
	case ModeStory:
		return "story"
	case ModeTransform:
		return "transform"
	case ModeBusiness:
		return "business"
	case ModePersonal:
		return "personal"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid reports whether m is one of Modes.
func (m Mode) Valid() bool {
	return m >= ModeArt && m <= ModePersonal
}

// ParseMode maps a mode name to a Mode. The empty string selects
// ModePersonal.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return ModePersonal, nil
	}
	for _, m := range Modes {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}
