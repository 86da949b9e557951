// Package slogan pulls a literal short phrase for a poster overlay out of
// free text.
//
// A quoted span takes priority. Without one, the phrase following an
// explicit marker such as "slogan should be" or "text says" is used, up to
// the next sentence boundary.
package slogan

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// quotePairs maps opening quote characters to their closing partner.
var quotePairs = map[rune]rune{
	'"':      '"',
	'\'':     '\'',
	'\u201c': '\u201d',
	'\u2018': '\u2019',
}

var markerRe = regexp.MustCompile(`(?i)\b(?:(?:slogan|tagline)\s+(?:should\s+be|is)|(?:slogan|tagline)\s*:|text\s+(?:should\s+)?(?:says?|reads?))\s*:?\s*`)

// Extract returns the slogan in text and whether one was found.
func Extract(text string) (string, bool) {
	if s, ok := quoted(text); ok {
		return s, true
	}
	return marked(text)
}

// quoted returns the first non-empty quoted span. An opening quote must not
// follow a letter or digit and a closing quote must not precede one, so
// apostrophes inside words are ignored.
func quoted(text string) (string, bool) {
	runes := []rune(text)
	for i, r := range runes {
		closing, ok := quotePairs[r]
		if !ok {
			continue
		}
		if i > 0 && isWordRune(runes[i-1]) {
			continue
		}
		for j := i + 1; j < len(runes); j++ {
			if runes[j] != closing {
				continue
			}
			if j+1 < len(runes) && isWordRune(runes[j+1]) {
				continue
			}
			span := strings.TrimSpace(string(runes[i+1 : j]))
			if span != "" {
				return span, true
			}
			break
		}
	}
	return "", false
}

// marked returns the phrase after a slogan marker.
func marked(text string) (string, bool) {
	loc := markerRe.FindStringIndex(text)
	if loc == nil {
		return "", false
	}

	rest := text[loc[1]:]
	if end := strings.IndexAny(rest, ".!?\n"); end >= 0 {
		rest = rest[:end]
	}

	rest = strings.TrimFunc(rest, func(r rune) bool {
		if _, isQuote := quotePairs[r]; isQuote {
			return true
		}
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':' || r == '\u201d' || r == '\u2019'
	})
	if rest == "" || !utf8.ValidString(rest) {
		return "", false
	}
	return rest, true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
