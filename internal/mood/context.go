package mood

import "strings"

// events are life-context keywords remembered alongside the mood.
var events = []string{
	"work", "office", "family", "friends", "home", "career",
	"morning", "afternoon", "evening", "night", "weekend", "vacation",
	"meeting", "yesterday", "tomorrow", "today", "day", "business", "company",
}

// DetectEvent returns the event keyword that occurs earliest in text, or "".
func DetectEvent(text string) string {
	lower := strings.ToLower(text)
	best := -1
	found := ""
	for _, e := range events {
		idx := indexWord(lower, e)
		if idx < 0 {
			continue
		}
		if best < 0 || idx < best {
			best = idx
			found = e
		}
	}
	return found
}

// ContextPrompt renders remembered mood and event into a prompt fragment.
// Either part may be empty.
func ContextPrompt(label, event string) string {
	switch {
	case label != "" && event != "":
		return label + " atmosphere related to " + event
	case label != "":
		return label + " atmosphere"
	case event != "":
		return "scene related to " + event
	}
	return ""
}
