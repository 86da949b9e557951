package startup

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/openai/openai-go/option"

	"github.com/hurricanerix/vizzy/internal/chat"
	"github.com/hurricanerix/vizzy/internal/clarify"
	"github.com/hurricanerix/vizzy/internal/config"
	"github.com/hurricanerix/vizzy/internal/conversation"
	"github.com/hurricanerix/vizzy/internal/image"
	"github.com/hurricanerix/vizzy/internal/imagegen"
	"github.com/hurricanerix/vizzy/internal/logging"
	"github.com/hurricanerix/vizzy/internal/narrative"
	"github.com/hurricanerix/vizzy/internal/ollama"
	"github.com/hurricanerix/vizzy/internal/prompt"
	"github.com/hurricanerix/vizzy/internal/provider"
	"github.com/hurricanerix/vizzy/internal/random"
	"github.com/hurricanerix/vizzy/internal/web"
)

// ollamaTagsTimeout bounds the model lookup done by the ollama client.
const ollamaTagsTimeout = 5 * time.Second

// Components holds all initialized application components
type Components struct {
	Store        conversation.Store
	Primary      imagegen.Backend
	Secondary    imagegen.Backend
	Engine       *imagegen.Engine
	Narrator     *narrative.Resilient
	Ollama       *ollama.Client
	Orchestrator *chat.Orchestrator
	ImageStorage *image.Storage
	WebServer    *web.Server
	Logger       *logging.Logger
}

// CreateLogger creates a logger with the configured level and format
func CreateLogger(cfg *config.Config) *logging.Logger {
	return logging.NewWithFormat(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, nil)
}

// CreateRandom returns the shared random source. A zero seed is replaced
// by the current time.
func CreateRandom(cfg *config.Config) random.Source {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return random.New(seed)
}

// CreateBackend creates the image model for one tier. It returns nil for
// BackendNone, which skips the tier.
func CreateBackend(ctx context.Context, cfg *config.Config, b config.Backend) (imagegen.Backend, error) {
	switch b.Kind {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendHFSpace:
		return provider.NewHFSpace(b.URL), nil
	case config.BackendHFInference:
		return provider.NewHFInference(b.URL, cfg.HFToken), nil
	case config.BackendOpenAI:
		var opts []option.RequestOption
		if b.URL != "" {
			opts = append(opts, option.WithBaseURL(b.URL))
		}
		return provider.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, opts...), nil
	case config.BackendGemini:
		g, err := provider.NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel, b.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini backend: %w", err)
		}
		return g, nil
	case config.BackendWorker:
		w, err := provider.NewWorker(b.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create worker backend: %w", err)
		}
		return w, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, b.Kind)
	}
}

// CreateEngine creates the tiered image engine from the tier backends and
// the configured retry policies. Either backend may be nil.
func CreateEngine(cfg *config.Config, primary, secondary imagegen.Backend, rng random.Source, logger *logging.Logger) *imagegen.Engine {
	return imagegen.NewEngine(imagegen.EngineConfig{
		Primary:   primary,
		Secondary: secondary,
		PrimaryPolicy: imagegen.RetryPolicy{
			MaxAttempts: cfg.PrimaryTries,
			Backoff:     cfg.PrimaryBackoff,
			Timeout:     cfg.Primary.Timeout,
		},
		SecondaryPolicy: imagegen.Single(cfg.Secondary.Timeout),
		Synth:           image.NewSynthesizer(rng),
		Logger:          logger.With("component", "imagegen"),
	})
}

// CreateOllamaClient creates an ollama client with the configured URL and model.
// It does NOT validate connection - use ValidateOllama() separately.
func CreateOllamaClient(cfg *config.Config, logger *logging.Logger) *ollama.Client {
	return ollama.NewClientWithConfig(cfg.OllamaURL, cfg.OllamaModel, ollamaTagsTimeout, logger.With("component", "ollama"))
}

// CreateNarrator wraps the configured outline generator so story mode
// always gets an outline. The ollama client is returned for validation
// and is nil unless the ollama narrative is selected.
func CreateNarrator(cfg *config.Config, rng random.Source, logger *logging.Logger) (*narrative.Resilient, *ollama.Client) {
	var (
		gen    narrative.Generator
		client *ollama.Client
	)
	switch cfg.Narrative {
	case config.NarrativeOllama:
		client = CreateOllamaClient(cfg, logger)
		gen = client
	case config.NarrativeOpenAI:
		gen = narrative.NewOpenAI(cfg.OpenAIKey, cfg.NarrativeModel)
	}

	return narrative.NewResilient(gen, narrative.NewTemplate(rng), cfg.NarrativeTimeout, logger.With("component", "narrative")), client
}

// CreateStore creates the conversation state store.
func CreateStore(cfg *config.Config, logger *logging.Logger) (conversation.Store, error) {
	switch cfg.StateStore {
	case config.StoreMemory, "":
		return conversation.NewMemoryStore(conversation.MemoryOptions{
			IdleTTL: cfg.StateIdleTTL,
			Logger:  logger.With("component", "state"),
		}), nil
	case config.StoreRedis:
		return conversation.NewRedisStore(conversation.RedisOptions{
			Addr:    cfg.RedisAddr,
			IdleTTL: cfg.StateIdleTTL,
			Logger:  logger.With("component", "state"),
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidStateStore, cfg.StateStore)
	}
}

// CreateImageStorage creates image storage and starts cleanup goroutine
func CreateImageStorage(ctx context.Context, logger *logging.Logger) *image.Storage {
	storage := image.NewStorage()
	storage.StartCleanup(ctx, logger)
	return storage
}

// CreateWebServer creates the HTTP server with all dependencies wired
func CreateWebServer(cfg *config.Config, c web.Chatter, imageStorage *image.Storage, logger *logging.Logger) *web.Server {
	return web.NewServer(c, web.Options{
		Addr:        cfg.Addr(),
		CORSOrigins: cfg.CORSOrigins,
		Info: web.Info{
			Service:   config.ServiceName,
			Version:   config.Version,
			Model:     modelName(cfg),
			Primary:   tierName(cfg.Primary),
			Secondary: tierName(cfg.Secondary),
		},
		Storage: imageStorage,
		Logger:  logger.With("component", "web"),
	})
}

// InitializeAll creates and initializes all application components.
// It does NOT validate dependencies - validation should be done separately.
func InitializeAll(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Components, error) {
	logger.Debug("Initializing components")
	rng := CreateRandom(cfg)

	store, err := CreateStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("Created %s state store", cfg.StateStore)

	primary, err := CreateBackend(ctx, cfg, cfg.Primary)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("primary tier: %w", err)
	}
	secondary, err := CreateBackend(ctx, cfg, cfg.Secondary)
	if err != nil {
		_ = store.Close()
		closeBackend(primary)
		return nil, fmt.Errorf("secondary tier: %w", err)
	}

	engine := CreateEngine(cfg, primary, secondary, rng, logger)
	logger.Debug("Created image engine: primary=%s, secondary=%s", tierName(cfg.Primary), tierName(cfg.Secondary))

	narrator, ollamaClient := CreateNarrator(cfg, rng, logger)
	logger.Debug("Created %s narrator", cfg.Narrative)

	orchestrator, err := chat.New(chat.Config{
		Store:      store,
		Classifier: clarify.New(cfg.MaxReasks),
		Builder: prompt.NewBuilder(rng, prompt.Params{
			Images:           cfg.Images,
			Width:            cfg.Width,
			Height:           cfg.Height,
			Steps:            cfg.Steps,
			Guidance:         cfg.Guidance,
			BusinessSteps:    cfg.BusinessSteps,
			BusinessGuidance: cfg.BusinessGuidance,
		}),
		Engine:           engine,
		Narrator:         narrator,
		Reasoner:         chat.NewReasoner(rng),
		StoryParallelism: cfg.StoryParallelism,
		Logger:           logger.With("component", "chat"),
	})
	if err != nil {
		_ = store.Close()
		closeBackend(primary)
		closeBackend(secondary)
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	imageStorage := CreateImageStorage(ctx, logger)
	logger.Debug("Created image storage with cleanup enabled")

	webServer := CreateWebServer(cfg, orchestrator, imageStorage, logger)
	logger.Debug("Created web server on %s", cfg.Addr())

	return &Components{
		Store:        store,
		Primary:      primary,
		Secondary:    secondary,
		Engine:       engine,
		Narrator:     narrator,
		Ollama:       ollamaClient,
		Orchestrator: orchestrator,
		ImageStorage: imageStorage,
		WebServer:    webServer,
		Logger:       logger,
	}, nil
}

// closeBackend releases backends that hold connections, such as the
// worker provider.
func closeBackend(b imagegen.Backend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func tierName(b config.Backend) string {
	if b.Kind == config.BackendNone {
		return ""
	}
	return b.Kind
}

// modelName describes the primary image model for the info endpoint.
func modelName(cfg *config.Config) string {
	switch cfg.Primary.Kind {
	case config.BackendOpenAI:
		return cfg.OpenAIModel
	case config.BackendGemini:
		return cfg.GeminiModel
	case config.BackendNone:
		return "placeholder"
	default:
		return cfg.Primary.URL
	}
}
