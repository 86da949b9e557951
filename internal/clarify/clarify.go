// Package clarify decides whether a chat message is specific enough to
// generate from and produces clarifying questions when it is not.
//
// Classification is a pure function of the message and the user's current
// conversation state. The caller applies the resulting Decision to the
// state inside the store's per-user critical section, so the question that
// was asked and the answer that resolves it are always seen in order.
package clarify

import (
	"strings"
	"time"

	"github.com/hurricanerix/vizzy/internal/conversation"
	"github.com/hurricanerix/vizzy/internal/mood"
)

// DefaultMaxReasks is how many times a question is repeated when the
// answer is vague too.
const DefaultMaxReasks = 1

// bestEffortMood is remembered when the re-ask budget runs out.
const bestEffortMood = "thoughtful"

// Kind is the outcome of classification.
type Kind int

const (
	// Actionable messages go straight to prompt building.
	Actionable Kind = iota
	// Vague messages are answered with a clarifying question.
	Vague
	// Resolution messages answer an outstanding question; the effective
	// message is the original query merged with the mood.
	Resolution
)

func (k Kind) String() string {
	switch k {
	case Actionable:
		return "actionable"
	case Vague:
		return "vague"
	case Resolution:
		return "resolution"
	default:
		return "unknown"
	}
}

// Question is a clarifying question with suggested short answers.
type Question struct {
	Text        string
	Suggestions []string
}

// Decision is the result of classifying one message.
type Decision struct {
	Kind Kind

	// Message is the text to generate from. For Resolution it is the
	// original query merged with the mood description.
	Message string

	// Mood is the mood resolved from a clarification answer. It is only
	// meaningful for Resolution.
	Mood mood.Result

	// Question is set for Vague.
	Question *Question

	// Reask is true when Vague repeats an outstanding question.
	Reask bool

	// Reason explains a Vague decision, for logging.
	Reason string
}

// Classifier classifies messages against conversation state.
type Classifier struct {
	maxReasks int
}

// New creates a Classifier. A negative maxReasks is treated as zero.
func New(maxReasks int) *Classifier {
	if maxReasks < 0 {
		maxReasks = 0
	}
	return &Classifier{maxReasks: maxReasks}
}

// Classify inspects message in the context of st.
//
// With an outstanding clarification, a message carrying a mood resolves
// it. A message without one re-asks until the re-ask budget is spent, then
// resolves with a best-effort mood. Without an outstanding clarification,
// a message about "my day" or "today" with no mood, and no remembered
// mood for the user, is vague.
func (c *Classifier) Classify(message string, st conversation.UserTurnState) Decision {
	if p := st.PendingClarification; p != nil {
		return c.classifyAnswer(message, p, st.ClarifyCount)
	}

	if reason, vague := isVague(message); vague && st.RememberedMood == "" {
		return Decision{
			Kind:     Vague,
			Message:  message,
			Question: NewQuestion(message, st.ClarifyCount),
			Reason:   reason,
		}
	}

	return Decision{Kind: Actionable, Message: message}
}

func (c *Classifier) classifyAnswer(answer string, p *conversation.PendingClarification, count int) Decision {
	m := mood.Extract(answer)
	if m.Found {
		return resolve(p.OriginalQuery, m)
	}

	if p.Reasks < c.maxReasks {
		return Decision{
			Kind:     Vague,
			Message:  p.OriginalQuery,
			Question: NewQuestion(p.OriginalQuery, count),
			Reask:    true,
			Reason:   "answer carried no mood",
		}
	}

	return resolve(p.OriginalQuery, mood.Result{
		Keyword:     bestEffortMood,
		Bucket:      mood.Neutral,
		Description: mood.DefaultDescription,
	})
}

func resolve(original string, m mood.Result) Decision {
	return Decision{
		Kind:    Resolution,
		Message: Merge(original, m.Description),
		Mood:    m,
	}
}

// Merge joins a vague query with a mood description.
func Merge(original, description string) string {
	return strings.TrimRight(strings.TrimSpace(original), ".!? ") + ". The mood is " + description + "."
}

// Apply records the decision's clarification bookkeeping on st. Asking a
// question stores the pending clarification and advances the phrasing
// rotation; a resolution clears it and remembers the mood.
func (d Decision) Apply(st *conversation.UserTurnState, now time.Time) {
	switch d.Kind {
	case Vague:
		if d.Reask && st.PendingClarification != nil {
			st.PendingClarification.Reasks++
			st.PendingClarification.AskedAt = now
		} else {
			st.SetPending(d.Message, now)
		}
		st.ClarifyCount++
		st.LastBotAction = conversation.ActionQuestion
	case Resolution:
		st.ClearPending()
		st.RememberedMood = d.Mood.Label()
	}
}

// isVague reports whether message is an open-ended request about the
// user's day with no mood in it.
func isVague(message string) (string, bool) {
	lower := strings.ToLower(message)
	if !strings.Contains(lower, "my day") && !strings.Contains(lower, "today") {
		return "", false
	}
	if mood.HasMood(message) {
		return "", false
	}
	return "day request without mood", true
}
