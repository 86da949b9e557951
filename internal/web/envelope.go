package web

import (
	"encoding/base64"

	"github.com/google/uuid"

	"github.com/hurricanerix/vizzy/internal/chat"
	"github.com/hurricanerix/vizzy/internal/prompt"
)

type chatRequest struct {
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Mode           string `json:"mode,omitempty"`
}

type resetRequest struct {
	UserID string `json:"user_id"`
}

// envelope wraps every chat response.
type envelope struct {
	Type           string `json:"type"`
	Content        any    `json:"content"`
	Timestamp      string `json:"timestamp"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type infoResponse struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Status    string `json:"status"`
	Model     string `json:"model"`
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

type healthResponse struct {
	Status              string `json:"status"`
	PrimaryConfigured   bool   `json:"primary_configured"`
	SecondaryConfigured bool   `json:"secondary_configured"`
	Timestamp           int64  `json:"timestamp"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type questionContent struct {
	Text        string   `json:"text"`
	Suggestions []string `json:"suggestions"`
}

type errorContent struct {
	Text string `json:"text"`
}

type metadataContent struct {
	GenerationTime float64  `json:"generation_time"`
	Mood           string   `json:"mood"`
	Mode           string   `json:"mode"`
	Tier           string   `json:"tier"`
	Padded         int      `json:"padded,omitempty"`
	Degraded       bool     `json:"degraded,omitempty"`
	ImageIDs       []string `json:"image_ids,omitempty"`
}

type imageContent struct {
	Images     []string        `json:"images"`
	Reasoning  string          `json:"reasoning"`
	PromptUsed string          `json:"prompt_used"`
	Mode       string          `json:"mode"`
	Style      string          `json:"style,omitempty"`
	Slogan     string          `json:"slogan,omitempty"`
	Metadata   metadataContent `json:"metadata"`
}

type sceneContent struct {
	SceneNumber int    `json:"scene_number"`
	Description string `json:"description"`
	Image       string `json:"image"`
	ImageID     string `json:"image_id,omitempty"`
}

type storyBody struct {
	Title  string         `json:"title"`
	Scenes []sceneContent `json:"scenes"`
}

type storyContent struct {
	Story     storyBody       `json:"story"`
	Reasoning string          `json:"reasoning"`
	Style     string          `json:"style,omitempty"`
	Metadata  metadataContent `json:"metadata"`
}

// content renders a result for the wire. Images are inlined as base64 and
// also put into storage so clients can fetch them by id.
func (s *Server) content(result chat.Result) any {
	switch r := result.(type) {
	case *chat.QuestionAnswer:
		return questionContent{Text: r.Text, Suggestions: r.Suggestions}

	case *chat.ImageAnswer:
		c := imageContent{
			Images:     make([]string, len(r.Images)),
			Reasoning:  r.Reasoning,
			PromptUsed: r.PromptUsed,
			Mode:       r.Mode.String(),
			Style:      r.Style,
			Slogan:     r.Slogan,
			Metadata:   metadata(r.Metadata),
		}
		for i, img := range r.Images {
			c.Images[i] = base64.StdEncoding.EncodeToString(img)
			if id := s.store(img); id != "" {
				c.Metadata.ImageIDs = append(c.Metadata.ImageIDs, id)
			}
		}
		return c

	case *chat.StoryAnswer:
		c := storyContent{
			Story: storyBody{
				Title:  r.Title,
				Scenes: make([]sceneContent, len(r.Scenes)),
			},
			Reasoning: r.Reasoning,
			Style:     r.Style,
			Metadata:  metadata(r.Metadata),
		}
		for i, scene := range r.Scenes {
			id := s.store(scene.Image)
			c.Story.Scenes[i] = sceneContent{
				SceneNumber: scene.Number,
				Description: scene.Description,
				Image:       base64.StdEncoding.EncodeToString(scene.Image),
				ImageID:     id,
			}
			if id != "" {
				c.Metadata.ImageIDs = append(c.Metadata.ImageIDs, id)
			}
		}
		return c

	case *chat.ErrorAnswer:
		return errorContent{Text: r.Text}
	}
	return errorContent{Text: "unexpected result"}
}

// store keeps img for GET /images/{id}. Images that cannot be stored are
// still returned inline.
func (s *Server) store(img []byte) string {
	id, err := s.storage.Store(img)
	if err != nil {
		s.logger.Warn("Failed to store image: %v", err)
		return ""
	}
	return id
}

func metadata(m chat.Metadata) metadataContent {
	return metadataContent{
		GenerationTime: m.GenerationTime.Seconds(),
		Mood:           m.Mood,
		Mode:           m.Mode.String(),
		Tier:           m.Tier.String(),
		Padded:         m.Padded,
		Degraded:       m.Degraded,
	}
}

// parseMode maps the wire mode to a prompt.Mode. An absent mode is
// personal.
func parseMode(s string) (prompt.Mode, error) {
	return prompt.ParseMode(s)
}

func newConversationID() string {
	return uuid.New().String()
}
