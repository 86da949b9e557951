package startup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hurricanerix/vizzy/internal/client"
	"github.com/hurricanerix/vizzy/internal/config"
	"github.com/hurricanerix/vizzy/internal/conversation"
	"github.com/hurricanerix/vizzy/internal/logging"
	"github.com/hurricanerix/vizzy/internal/ollama"
)

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"http://localhost:11434", false},
		{"https://Dvbydt-VizzyAPICHAT.hf.space", false},
		{"https://router.huggingface.co/hf-inference/models/x", false},
		{"ftp://example.com", true},
		{"file:///etc/passwd", true},
		{"localhost:11434", true},
		{"http://", true},
		{"://bad", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateEndpoint(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateEndpoint(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEndpoint) {
				t.Errorf("error = %v, want ErrInvalidEndpoint", err)
			}
		})
	}
}

// tagsServer serves /api/tags listing models.
func tagsServer(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ollama.EndpointTags {
			http.NotFound(w, r)
			return
		}
		var resp ollama.TagsResponse
		for _, m := range models {
			resp.Models = append(resp.Models, ollama.ModelInfo{Name: m})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidateOllama(t *testing.T) {
	t.Run("model available", func(t *testing.T) {
		srv := tagsServer(t, "llama3.1:8b")
		client := ollama.NewClientWithConfig(srv.URL, "llama3.1:8b", time.Second, nil)
		if err := ValidateOllama(context.Background(), client); err != nil {
			t.Errorf("ValidateOllama() error = %v", err)
		}
	})

	t.Run("model missing", func(t *testing.T) {
		srv := tagsServer(t, "mistral")
		client := ollama.NewClientWithConfig(srv.URL, "llama3.1:8b", time.Second, nil)
		err := ValidateOllama(context.Background(), client)
		if !errors.Is(err, ollama.ErrModelNotFound) {
			t.Errorf("ValidateOllama() error = %v, want ErrModelNotFound", err)
		}
	})

	t.Run("not running", func(t *testing.T) {
		srv := tagsServer(t)
		url := srv.URL
		srv.Close()
		client := ollama.NewClientWithConfig(url, "llama3.1:8b", time.Second, nil)
		err := ValidateOllama(context.Background(), client)
		if !errors.Is(err, ErrOllamaNotRunning) {
			t.Errorf("ValidateOllama() error = %v, want ErrOllamaNotRunning", err)
		}
	})
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestValidateStore(t *testing.T) {
	if err := ValidateStore(context.Background(), fakePinger{}); err != nil {
		t.Errorf("ValidateStore(healthy) error = %v", err)
	}

	err := ValidateStore(context.Background(), fakePinger{err: errors.New("connection refused")})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("ValidateStore(down) error = %v, want ErrStoreUnavailable", err)
	}

	mem := conversation.NewMemoryStore(conversation.MemoryOptions{})
	defer mem.Close()
	if err := ValidateStore(context.Background(), mem); err != nil {
		t.Errorf("ValidateStore(memory) error = %v", err)
	}
}

func TestValidateDependencies(t *testing.T) {
	logger := logging.Nop()

	t.Run("offline", func(t *testing.T) {
		cfg := offlineConfig()
		mem := conversation.NewMemoryStore(conversation.MemoryOptions{})
		defer mem.Close()
		if err := ValidateDependencies(context.Background(), cfg, &Components{Store: mem}, logger); err != nil {
			t.Errorf("ValidateDependencies() error = %v", err)
		}
	})

	t.Run("bad backend url", func(t *testing.T) {
		cfg := offlineConfig()
		cfg.Primary = config.Backend{Kind: config.BackendHFSpace, URL: "gopher://example"}
		err := ValidateDependencies(context.Background(), cfg, &Components{}, logger)
		if !errors.Is(err, ErrInvalidEndpoint) {
			t.Errorf("ValidateDependencies() error = %v, want ErrInvalidEndpoint", err)
		}
	})

	t.Run("bad worker address", func(t *testing.T) {
		cfg := offlineConfig()
		cfg.Secondary = config.Backend{Kind: config.BackendWorker, URL: "https://gpu:7070"}
		err := ValidateDependencies(context.Background(), cfg, &Components{}, logger)
		if !errors.Is(err, client.ErrInvalidAddress) {
			t.Errorf("ValidateDependencies() error = %v, want ErrInvalidAddress", err)
		}
	})

	t.Run("bad ollama url", func(t *testing.T) {
		cfg := offlineConfig()
		cfg.Narrative = config.NarrativeOllama
		cfg.OllamaURL = "localhost:11434"
		err := ValidateDependencies(context.Background(), cfg, &Components{}, logger)
		if !errors.Is(err, ErrInvalidEndpoint) {
			t.Errorf("ValidateDependencies() error = %v, want ErrInvalidEndpoint", err)
		}
	})

	t.Run("store down", func(t *testing.T) {
		cfg := offlineConfig()
		err := ValidateDependencies(context.Background(), cfg, &Components{Store: downStore{}}, logger)
		if !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("ValidateDependencies() error = %v, want ErrStoreUnavailable", err)
		}
	})

	t.Run("ollama down is not fatal", func(t *testing.T) {
		srv := tagsServer(t)
		url := srv.URL
		srv.Close()

		cfg := offlineConfig()
		cfg.Narrative = config.NarrativeOllama
		cfg.OllamaURL = url
		client := ollama.NewClientWithConfig(url, cfg.OllamaModel, time.Second, nil)
		if err := ValidateDependencies(context.Background(), cfg, &Components{Ollama: client}, logger); err != nil {
			t.Errorf("ValidateDependencies() error = %v, want nil", err)
		}
	})
}

// downStore is a state store whose backend cannot be reached.
type downStore struct {
	conversation.Store
}

func (downStore) Ping(context.Context) error { return errors.New("dial tcp: connection refused") }
