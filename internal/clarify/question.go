package clarify

import "strings"

type topic int

const (
	topicDay topic = iota
	topicFeeling
	topicDefault
)

var phrasings = map[topic][]string{
	topicDay: {
		"I'd love to visualize your day! Could you tell me more about how it felt?",
		"What was the predominant feeling during your day?",
		"How would you describe the energy of your day?",
	},
	topicFeeling: {
		"What emotions would you like me to capture in this artwork?",
		"Tell me more about what you're feeling - that will help me create something meaningful.",
		"What emotional tone should I emphasize?",
	},
	topicDefault: {
		"To create something personal, could you tell me more about the mood you want to express?",
		"What feeling should this artwork capture?",
		"Let's make something special! Tell me more about the feeling you want to capture.",
	},
}

// answers are offered as suggested replies. Each one resolves a question.
var answers = []string{
	"It was peaceful and calm",
	"It was busy and hectic",
	"It was dull and I needed motivation",
	"It was exciting and fun",
	"It was challenging but rewarding",
}

const suggestionCount = 4

// NewQuestion builds a question about query. rotation selects the
// phrasing and the suggestion window; consecutive values never repeat a
// phrasing.
func NewQuestion(query string, rotation int) *Question {
	if rotation < 0 {
		rotation = -rotation
	}

	options := phrasings[topicOf(query)]
	suggestions := make([]string, 0, suggestionCount)
	for i := 0; i < suggestionCount; i++ {
		suggestions = append(suggestions, answers[(rotation+i)%len(answers)])
	}

	return &Question{
		Text:        options[rotation%len(options)],
		Suggestions: suggestions,
	}
}

func topicOf(query string) topic {
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "day"), strings.Contains(lower, "today"):
		return topicDay
	case strings.Contains(lower, "feel"), strings.Contains(lower, "emotion"), strings.Contains(lower, "mood"):
		return topicFeeling
	default:
		return topicDefault
	}
}
