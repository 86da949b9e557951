// Package conversation holds the minimal per-user turn-taking state the
// chat orchestrator needs to resolve ambiguity across messages.
//
// # Design Overview
//
// Each user identifier maps to one UserTurnState. The state is small on
// purpose: the last bot action, an optional pending clarification, the
// remembered mood and a short window of recent messages. It is created
// lazily on the first Update for a user and removed by Delete.
//
// Stores offer a per-user critical section through Update: the callback
// sees the current state and its changes are committed atomically, while
// updates for different users never block each other. Callbacks must be
// quick and must not perform network calls; the orchestrator reads state,
// releases it, calls the image model, then updates again.
//
// Two stores are provided. MemoryStore keeps state in process and evicts
// idle users. RedisStore keeps state in Redis with a TTL and uses
// optimistic WATCH transactions, so its callbacks may run more than once.
package conversation

import (
	"strings"
	"time"
)

const (
	// MaxRecentMessages is the maximum number of user messages kept per user.
	MaxRecentMessages = 50

	// styleWindow is how many recent messages are scanned for a favourite style.
	styleWindow = 10
)

// Bot actions recorded in UserTurnState.LastBotAction.
const (
	ActionQuestion = "question"
	ActionImage    = "image"
	ActionStory    = "story"
	ActionError    = "error"
)

// styleKeywords are the styles recognised as a user's favourite.
var styleKeywords = []string{"cinematic", "minimalist", "abstract", "realistic", "vintage", "modern"}

// PendingClarification is an open question waiting for the user's answer.
type PendingClarification struct {
	// OriginalQuery is the vague message that triggered the question.
	OriginalQuery string `json:"original_query"`
	// AskedAt is when the question was asked.
	AskedAt time.Time `json:"asked_at"`
	// Reasks counts how many times the question was repeated because the
	// answer was vague too.
	Reasks int `json:"reasks"`
}

// UserTurnState is the conversational state kept for one user.
type UserTurnState struct {
	UserID string `json:"user_id"`

	// PendingClarification is set while a question is unanswered. At most
	// one is outstanding; a new question replaces the old one.
	PendingClarification *PendingClarification `json:"pending_clarification,omitempty"`

	LastMode       string `json:"last_mode,omitempty"`
	LastBotAction  string `json:"last_bot_action,omitempty"`
	RememberedMood string `json:"remembered_mood,omitempty"`
	LastEvent      string `json:"last_event,omitempty"`

	// ClarifyCount advances every time a question is asked and picks the
	// next phrasing.
	ClarifyCount int `json:"clarify_count"`

	RecentMessages []string  `json:"recent_messages,omitempty"`
	LastUpdatedAt  time.Time `json:"last_updated_at"`
}

// HasPending reports whether a clarification is outstanding.
func (s *UserTurnState) HasPending() bool {
	return s.PendingClarification != nil
}

// SetPending records a new clarification, replacing any earlier one.
func (s *UserTurnState) SetPending(query string, at time.Time) {
	s.PendingClarification = &PendingClarification{OriginalQuery: query, AskedAt: at}
}

// ClearPending drops the outstanding clarification.
func (s *UserTurnState) ClearPending() {
	s.PendingClarification = nil
}

// AddMessage appends msg to the recent message window, dropping the oldest
// entries beyond MaxRecentMessages.
func (s *UserTurnState) AddMessage(msg string) {
	s.RecentMessages = append(s.RecentMessages, msg)
	if excess := len(s.RecentMessages) - MaxRecentMessages; excess > 0 {
		trimmed := make([]string, MaxRecentMessages)
		copy(trimmed, s.RecentMessages[excess:])
		s.RecentMessages = trimmed
	}
}

// FavoriteStyle returns the style keyword mentioned most often in the last
// few messages, or "" if none was mentioned. Ties go to the style listed
// first in the keyword set.
func (s *UserTurnState) FavoriteStyle() string {
	recent := s.RecentMessages
	if len(recent) > styleWindow {
		recent = recent[len(recent)-styleWindow:]
	}

	counts := make(map[string]int, len(styleKeywords))
	for _, msg := range recent {
		lower := strings.ToLower(msg)
		for _, style := range styleKeywords {
			if strings.Contains(lower, style) {
				counts[style]++
			}
		}
	}

	best, bestCount := "", 0
	for _, style := range styleKeywords {
		if counts[style] > bestCount {
			best, bestCount = style, counts[style]
		}
	}
	return best
}
