package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurricanerix/vizzy/internal/random"
)

func TestTitle(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"a dragon who learns to fly", "A dragon who..."},
		{"Lost CAT", "Lost cat"},
		{"  ", ""},
		{"one two three", "One two three"},
		{"Draw my day. The mood is calm and peaceful.", "Draw my day..."},
		{"ships, storms, and sailors", "Ships, storms, and..."},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, Title(tt.topic))
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"a quest for the lost crown", KindAdventure},
		{"two people falling in love", KindRomance},
		{"the detective and the missing key", KindMystery},
		{"a dream of becoming a pilot", KindInspirational},
		{"a wizard's apprentice", KindFantasy},
		{"a day at the beach", KindDefault},
		// adventure is checked before fantasy
		{"a dragon adventure", KindAdventure},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.topic))
		})
	}
}

func TestTemplate_Generate(t *testing.T) {
	tmpl := NewTemplate(random.NewSequence(1))

	got, err := tmpl.Generate(context.Background(), "a dragon who learns to fly", "happy")
	require.NoError(t, err)

	want := Outline{
		Title: "A dragon who...",
		Scenes: []string{
			"The happy prophecy spoke of a hero... a dragon who learns to fly",
			"The happy journey continued as new challenges emerged.",
			"In the end, the happy experience left everyone transformed.",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("outline mismatch (-want +got):\n%s", diff)
	}

	_, err = tmpl.Generate(context.Background(), " ", "happy")
	assert.ErrorIs(t, err, ErrEmptyTopic)
}

func TestOutline_Clean(t *testing.T) {
	o, err := Outline{Scenes: []string{" one ", "", "two"}}.Clean("a long topic name here")
	require.NoError(t, err)
	assert.Equal(t, "A long topic...", o.Title)
	assert.Equal(t, []string{"one", "two"}, o.Scenes)

	_, err = Outline{Title: "x", Scenes: []string{" ", ""}}.Clean("t")
	assert.ErrorIs(t, err, ErrEmptyOutline)
}

func TestParseOutline(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Outline
		wantErr bool
	}{
		{
			name: "plain",
			raw:  `{"title":"T","scenes":["a","b","c"]}`,
			want: Outline{Title: "T", Scenes: []string{"a", "b", "c"}},
		},
		{
			name: "fenced",
			raw:  "```json\n{\"title\":\"T\",\"scenes\":[\"a\"]}\n```",
			want: Outline{Title: "T", Scenes: []string{"a"}},
		},
		{
			name: "chatter around json",
			raw:  "Sure! {\"title\":\"T\",\"scenes\":[\"a\"]} Enjoy.",
			want: Outline{Title: "T", Scenes: []string{"a"}},
		},
		{name: "not json", raw: "once upon a time", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOutline(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResilient_Tell(t *testing.T) {
	remote := Outline{Title: "Remote", Scenes: []string{"s1", "s2", "s3", "s4"}}

	tests := []struct {
		name         string
		gen          Generator
		wantDegraded bool
		wantTitle    string
		wantScenes   int
	}{
		{
			name:       "remote success keeps every scene",
			gen:        GeneratorFunc(func(context.Context, string, string) (Outline, error) { return remote, nil }),
			wantTitle:  "Remote",
			wantScenes: 4,
		},
		{
			name:         "remote error",
			gen:          GeneratorFunc(func(context.Context, string, string) (Outline, error) { return Outline{}, errors.New("boom") }),
			wantDegraded: true,
			wantTitle:    "A lonely robot...",
			wantScenes:   SceneCount,
		},
		{
			name:         "remote empty",
			gen:          GeneratorFunc(func(context.Context, string, string) (Outline, error) { return Outline{Title: "x"}, nil }),
			wantDegraded: true,
			wantTitle:    "A lonely robot...",
			wantScenes:   SceneCount,
		},
		{
			name:         "remote panic",
			gen:          GeneratorFunc(func(context.Context, string, string) (Outline, error) { panic("bad") }),
			wantDegraded: true,
			wantTitle:    "A lonely robot...",
			wantScenes:   SceneCount,
		},
		{
			name:       "template only",
			gen:        nil,
			wantTitle:  "A lonely robot...",
			wantScenes: SceneCount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResilient(tt.gen, NewTemplate(random.NewSequence(0)), time.Second, nil)
			story := r.Tell(context.Background(), "a lonely robot finds a friend", "calm")
			assert.Equal(t, tt.wantDegraded, story.Degraded)
			assert.Equal(t, tt.wantTitle, story.Title)
			assert.Len(t, story.Scenes, tt.wantScenes)
		})
	}
}

func TestResilient_TimeoutFallsBack(t *testing.T) {
	slow := GeneratorFunc(func(ctx context.Context, _, _ string) (Outline, error) {
		<-ctx.Done()
		return Outline{}, ctx.Err()
	})

	start := time.Now()
	story := NewResilient(slow, nil, 20*time.Millisecond, nil).Tell(context.Background(), "a quest", "tired")

	assert.True(t, story.Degraded)
	assert.Len(t, story.Scenes, SceneCount)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResilient_EmptyTopicStillDrawable(t *testing.T) {
	story := NewResilient(nil, nil, 0, nil).Tell(context.Background(), "", "calm")
	assert.Len(t, story.Scenes, SceneCount)
	assert.NotEmpty(t, story.Title)
}

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func TestOpenAI_Generate(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletion(`{"title":"Robot","scenes":["a","b","c"]}`))
	}))
	defer server.Close()

	n := NewOpenAI("test-key", "", option.WithBaseURL(server.URL), option.WithMaxRetries(0))
	got, err := n.Generate(context.Background(), "a robot", "calm")
	require.NoError(t, err)

	assert.Equal(t, Outline{Title: "Robot", Scenes: []string{"a", "b", "c"}}, got)
	assert.Equal(t, DefaultOpenAIModel, gotBody["model"])
	messages, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestOpenAI_GenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"down"}}`, http.StatusInternalServerError)
		}},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			body := chatCompletion("")
			body["choices"] = []any{}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(body)
		}},
		{"not json content", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(chatCompletion("once upon a time"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			n := NewOpenAI("k", "m", option.WithBaseURL(server.URL), option.WithMaxRetries(0))
			_, err := n.Generate(context.Background(), "topic", "calm")
			assert.Error(t, err)
		})
	}
}
