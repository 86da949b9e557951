package startup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hurricanerix/vizzy/internal/client"
	"github.com/hurricanerix/vizzy/internal/config"
	"github.com/hurricanerix/vizzy/internal/conversation"
	"github.com/hurricanerix/vizzy/internal/logging"
	"github.com/hurricanerix/vizzy/internal/provider"
)

// offlineConfig returns a valid configuration that never leaves the
// process: no image backends, template narratives and in-memory state.
func offlineConfig() *config.Config {
	cfg := config.Default()
	cfg.Primary.Kind = config.BackendNone
	cfg.Secondary.Kind = config.BackendNone
	cfg.Seed = 42
	return cfg
}

func TestCreateBackend(t *testing.T) {
	cfg := config.Default()
	cfg.HFToken = "hf_test"
	cfg.OpenAIKey = "sk-test"
	cfg.GeminiKey = "gm-test"

	tests := []struct {
		name    string
		backend config.Backend
		wantNil bool
		wantErr error
		check   func(t *testing.T, b any)
	}{
		{name: "none", backend: config.Backend{Kind: config.BackendNone}, wantNil: true},
		{name: "empty", backend: config.Backend{}, wantNil: true},
		{
			name:    "hf space",
			backend: config.Backend{Kind: config.BackendHFSpace, URL: "https://example.hf.space"},
			check: func(t *testing.T, b any) {
				if _, ok := b.(*provider.HFSpace); !ok {
					t.Errorf("backend = %T, want *provider.HFSpace", b)
				}
			},
		},
		{
			name:    "hf inference",
			backend: config.Backend{Kind: config.BackendHFInference, URL: "https://router.example/models/sdxl"},
			check: func(t *testing.T, b any) {
				if _, ok := b.(*provider.HFInference); !ok {
					t.Errorf("backend = %T, want *provider.HFInference", b)
				}
			},
		},
		{
			name:    "openai",
			backend: config.Backend{Kind: config.BackendOpenAI, URL: "http://localhost:9999/v1"},
			check: func(t *testing.T, b any) {
				if _, ok := b.(*provider.OpenAI); !ok {
					t.Errorf("backend = %T, want *provider.OpenAI", b)
				}
			},
		},
		{
			name:    "gemini",
			backend: config.Backend{Kind: config.BackendGemini},
			check: func(t *testing.T, b any) {
				if _, ok := b.(*provider.Gemini); !ok {
					t.Errorf("backend = %T, want *provider.Gemini", b)
				}
			},
		},
		{
			name:    "worker",
			backend: config.Backend{Kind: config.BackendWorker, URL: "unix:///run/vizzy/worker.sock"},
			check: func(t *testing.T, b any) {
				if _, ok := b.(*provider.Worker); !ok {
					t.Errorf("backend = %T, want *provider.Worker", b)
				}
			},
		},
		{name: "worker bad address", backend: config.Backend{Kind: config.BackendWorker, URL: "http://gpu:7070"}, wantErr: client.ErrInvalidAddress},
		{name: "unknown", backend: config.Backend{Kind: "midjourney"}, wantErr: config.ErrInvalidBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := CreateBackend(context.Background(), cfg, tt.backend)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CreateBackend() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateBackend() error = %v", err)
			}
			if tt.wantNil {
				if b != nil {
					t.Errorf("CreateBackend() = %T, want nil", b)
				}
				return
			}
			tt.check(t, b)
		})
	}
}

func TestCreateStore(t *testing.T) {
	logger := logging.Nop()

	t.Run("memory", func(t *testing.T) {
		cfg := offlineConfig()
		store, err := CreateStore(cfg, logger)
		if err != nil {
			t.Fatalf("CreateStore() error = %v", err)
		}
		defer store.Close()
		if _, ok := store.(*conversation.MemoryStore); !ok {
			t.Errorf("store = %T, want *conversation.MemoryStore", store)
		}
	})

	t.Run("redis", func(t *testing.T) {
		cfg := offlineConfig()
		cfg.StateStore = config.StoreRedis
		cfg.RedisAddr = "127.0.0.1:1"
		store, err := CreateStore(cfg, logger)
		if err != nil {
			t.Fatalf("CreateStore() error = %v", err)
		}
		defer store.Close()
		if _, ok := store.(*conversation.RedisStore); !ok {
			t.Errorf("store = %T, want *conversation.RedisStore", store)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := offlineConfig()
		cfg.StateStore = "etcd"
		if _, err := CreateStore(cfg, logger); !errors.Is(err, config.ErrInvalidStateStore) {
			t.Errorf("CreateStore() error = %v, want ErrInvalidStateStore", err)
		}
	})
}

func TestCreateNarrator(t *testing.T) {
	tests := []struct {
		kind       string
		wantClient bool
	}{
		{config.NarrativeTemplate, false},
		{config.NarrativeOllama, true},
		{config.NarrativeOpenAI, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			cfg := offlineConfig()
			cfg.Narrative = tt.kind
			cfg.OpenAIKey = "sk-test"

			narrator, client := CreateNarrator(cfg, CreateRandom(cfg), logging.Nop())
			if narrator == nil {
				t.Fatal("CreateNarrator() returned nil narrator")
			}
			if (client != nil) != tt.wantClient {
				t.Errorf("client = %v, want present %v", client, tt.wantClient)
			}
			if client != nil && client.Model() != cfg.OllamaModel {
				t.Errorf("client.Model() = %q, want %q", client.Model(), cfg.OllamaModel)
			}
		})
	}
}

func TestCreateNarrator_TemplateTellsStory(t *testing.T) {
	cfg := offlineConfig()
	narrator, _ := CreateNarrator(cfg, CreateRandom(cfg), logging.Nop())

	story := narrator.Tell(context.Background(), "a lighthouse keeper", "calm")
	if len(story.Scenes) == 0 {
		t.Fatal("template narrator produced no scenes")
	}
	if story.Title == "" {
		t.Error("template narrator produced no title")
	}
}

func TestModelAndTierNames(t *testing.T) {
	cfg := offlineConfig()
	if got := modelName(cfg); got != "placeholder" {
		t.Errorf("modelName() = %q, want placeholder", got)
	}
	if got := tierName(cfg.Primary); got != "" {
		t.Errorf("tierName(none) = %q, want empty", got)
	}

	cfg.Primary = config.Backend{Kind: config.BackendOpenAI}
	if got := modelName(cfg); got != cfg.OpenAIModel {
		t.Errorf("modelName() = %q, want %q", got, cfg.OpenAIModel)
	}
	if got := tierName(cfg.Primary); got != config.BackendOpenAI {
		t.Errorf("tierName() = %q, want %q", got, config.BackendOpenAI)
	}

	cfg.Primary = config.Backend{Kind: config.BackendHFSpace, URL: "https://example.hf.space"}
	if got := modelName(cfg); got != "https://example.hf.space" {
		t.Errorf("modelName() = %q, want the space URL", got)
	}
}

func TestInitializeAll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := offlineConfig()
	components, err := InitializeAll(ctx, cfg, logging.Nop())
	if err != nil {
		t.Fatalf("InitializeAll() error = %v", err)
	}
	defer Cleanup(components, logging.Nop())

	if components.Store == nil || components.Engine == nil || components.Narrator == nil ||
		components.Orchestrator == nil || components.ImageStorage == nil || components.WebServer == nil {
		t.Fatalf("InitializeAll() left components unset: %+v", components)
	}
	if components.Ollama != nil {
		t.Error("Ollama client created for the template narrative")
	}

	// A full turn through the wired server ends in placeholder art.
	body := `{"user_id":"tester","message":"a lighthouse at dusk","mode":"art"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	components.WebServer.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /chat status = %d, body %s", rec.Code, rec.Body.String())
	}
	var env struct {
		Type    string `json:"type"`
		Content struct {
			Images   []string `json:"images"`
			Metadata struct {
				Tier string `json:"tier"`
			} `json:"metadata"`
		} `json:"content"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Type != "image" {
		t.Fatalf("type = %q, want image", env.Type)
	}
	if len(env.Content.Images) != cfg.Images {
		t.Errorf("got %d images, want %d", len(env.Content.Images), cfg.Images)
	}
}

func TestInitializeAll_InvalidBackend(t *testing.T) {
	cfg := offlineConfig()
	cfg.Secondary.Kind = "midjourney"

	_, err := InitializeAll(context.Background(), cfg, logging.Nop())
	if !errors.Is(err, config.ErrInvalidBackend) {
		t.Errorf("InitializeAll() error = %v, want ErrInvalidBackend", err)
	}
}
