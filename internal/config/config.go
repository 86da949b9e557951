// Package config provides configuration management for the vizzy service.
//
// Values are resolved in layers: built-in defaults, an optional YAML file,
// environment variables, then command-line flags the user actually set.
// The resolved Config is validated once and passed to components during
// initialization.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	// Version is the vizzy service version
	Version = "1.0.0"

	// ServiceName is reported by the info endpoint
	ServiceName = "Vizzy Chat API"
)

// Backend kinds for the primary and secondary image tiers.
const (
	BackendHFSpace     = "hf-space"
	BackendHFInference = "hf-inference"
	BackendOpenAI      = "openai"
	BackendGemini      = "gemini"
	BackendWorker      = "worker"
	BackendNone        = "none"
)

// Narrative generator kinds.
const (
	NarrativeTemplate = "template"
	NarrativeOllama   = "ollama"
	NarrativeOpenAI   = "openai"
)

// State store kinds.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

const (
	defaultHost      = "localhost"
	defaultPort      = 8000
	defaultLogLevel  = "info"
	defaultLogFormat = "console"

	defaultPrimaryKind    = BackendHFSpace
	defaultPrimaryURL     = "https://Dvbydt-VizzyAPICHAT.hf.space"
	defaultSecondaryKind  = BackendHFInference
	defaultSecondaryURL   = "https://router.huggingface.co/hf-inference/models/stabilityai/stable-diffusion-xl-base-1.0"
	defaultOpenAIModel    = "dall-e-3"
	defaultGeminiModel    = "gemini-2.5-flash-image"
	defaultPrimaryTries   = 3
	defaultPrimaryBackoff = 5 * time.Second
	defaultPrimaryTimeout = 120 * time.Second
	defaultSecondaryWait  = 120 * time.Second

	defaultImagesPerRequest = 2
	defaultWidth            = 768
	defaultHeight           = 768
	defaultSteps            = 30
	defaultGuidance         = 7.5
	defaultBusinessSteps    = 50
	defaultBusinessGuidance = 9.0

	defaultNarrativeKind    = NarrativeTemplate
	defaultOllamaURL        = "http://localhost:11434"
	defaultOllamaModel      = "llama3.1:8b"
	defaultNarrativeModel   = "gpt-4o-mini"
	defaultNarrativeTimeout = 30 * time.Second
	defaultStoryParallelism = 3

	defaultStateStore   = StoreMemory
	defaultStateIdleTTL = 24 * time.Hour
	defaultMaxReasks    = 1

	// Validation constraints
	minPort        = 1024
	maxPort        = 65535
	minAttempts    = 1
	maxAttempts    = 10
	maxBackoff     = time.Minute
	minTimeout     = time.Second
	maxTimeout     = 10 * time.Minute
	minImages      = 1
	maxImages      = 4
	minDimension   = 64
	maxDimension   = 2048
	dimensionStep  = 8
	minSteps       = 1
	maxSteps       = 150
	minGuidance    = 0.0
	maxGuidance    = 30.0
	minParallelism = 1
	maxParallelism = 10
	maxReasksLimit = 5
	minIdleTTL     = time.Minute
)

// DefaultCORSOrigins are the browser origins allowed by default.
var DefaultCORSOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
	"http://localhost:5175",
	"http://localhost:3000",
	"https://*.vercel.app",
}

var (
	// ErrInvalidPort is returned when port is out of valid range
	ErrInvalidPort = errors.New("port must be between 1024 and 65535")
	// ErrInvalidLogLevel is returned when log level is not recognized
	ErrInvalidLogLevel = errors.New("log-level must be one of: debug, info, warn, error")
	// ErrInvalidLogFormat is returned when log format is not recognized
	ErrInvalidLogFormat = errors.New("log-format must be one of: console, json")
	// ErrInvalidBackend is returned when a backend kind is not recognized
	ErrInvalidBackend = errors.New("backend must be one of: hf-space, hf-inference, openai, gemini, worker, none")
	// ErrMissingBackendURL is returned when an HTTP backend has no URL
	ErrMissingBackendURL = errors.New("backend url is required")
	// ErrMissingCredentials is returned when a backend needs an API key that is not set
	ErrMissingCredentials = errors.New("backend credentials are not configured")
	// ErrInvalidAttempts is returned when the primary attempt count is out of range
	ErrInvalidAttempts = errors.New("primary-attempts must be between 1 and 10")
	// ErrInvalidBackoff is returned when the retry backoff is out of range
	ErrInvalidBackoff = errors.New("primary-backoff must be between 0s and 1m")
	// ErrInvalidTimeout is returned when a tier timeout is out of range
	ErrInvalidTimeout = errors.New("timeouts must be between 1s and 10m")
	// ErrInvalidImageCount is returned when images per request is out of range
	ErrInvalidImageCount = errors.New("images must be between 1 and 4")
	// ErrInvalidWidth is returned when width is invalid
	ErrInvalidWidth = errors.New("width must be between 64 and 2048 and a multiple of 8")
	// ErrInvalidHeight is returned when height is invalid
	ErrInvalidHeight = errors.New("height must be between 64 and 2048 and a multiple of 8")
	// ErrInvalidSteps is returned when an inference step count is out of range
	ErrInvalidSteps = errors.New("steps must be between 1 and 150")
	// ErrInvalidGuidance is returned when a guidance scale is out of range
	ErrInvalidGuidance = errors.New("guidance must be between 0.0 and 30.0")
	// ErrInvalidNarrative is returned when the narrative kind is not recognized
	ErrInvalidNarrative = errors.New("narrative must be one of: template, ollama, openai")
	// ErrInvalidParallelism is returned when story parallelism is out of range
	ErrInvalidParallelism = errors.New("story-parallelism must be between 1 and 10")
	// ErrInvalidStateStore is returned when the state store kind is not recognized
	ErrInvalidStateStore = errors.New("state-store must be one of: memory, redis")
	// ErrMissingRedisAddr is returned when the redis store has no address
	ErrMissingRedisAddr = errors.New("redis-addr is required for the redis state store")
	// ErrInvalidIdleTTL is returned when the state idle TTL is too short
	ErrInvalidIdleTTL = errors.New("state-idle-ttl must be at least 1m")
	// ErrInvalidMaxReasks is returned when max re-asks is out of range
	ErrInvalidMaxReasks = errors.New("max-reasks must be between 0 and 5")
)

// Backend describes one external image model endpoint.
type Backend struct {
	Kind    string        `yaml:"kind"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config holds all configuration values for the vizzy service.
type Config struct {
	// Server configuration
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`

	// Logging configuration
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Image tiers
	Primary        Backend       `yaml:"primary"`
	Secondary      Backend       `yaml:"secondary"`
	PrimaryTries   int           `yaml:"primary_attempts"`
	PrimaryBackoff time.Duration `yaml:"primary_backoff"`

	// Credentials and hosted model names
	HFToken     string `yaml:"hf_token"`
	OpenAIKey   string `yaml:"openai_api_key"`
	OpenAIModel string `yaml:"openai_model"`
	GeminiKey   string `yaml:"gemini_api_key"`
	GeminiModel string `yaml:"gemini_model"`

	// Generation parameters
	Images           int     `yaml:"images"`
	Width            int     `yaml:"width"`
	Height           int     `yaml:"height"`
	Steps            int     `yaml:"steps"`
	Guidance         float64 `yaml:"guidance"`
	BusinessSteps    int     `yaml:"business_steps"`
	BusinessGuidance float64 `yaml:"business_guidance"`
	Seed             int64   `yaml:"seed"`

	// Narrative generator
	Narrative        string        `yaml:"narrative"`
	OllamaURL        string        `yaml:"ollama_url"`
	OllamaModel      string        `yaml:"ollama_model"`
	NarrativeModel   string        `yaml:"narrative_model"`
	NarrativeTimeout time.Duration `yaml:"narrative_timeout"`
	StoryParallelism int           `yaml:"story_parallelism"`

	// Conversation state
	StateStore   string        `yaml:"state_store"`
	RedisAddr    string        `yaml:"redis_addr"`
	StateIdleTTL time.Duration `yaml:"state_idle_ttl"`
	MaxReasks    int           `yaml:"max_reasks"`

	// File is the YAML file the config was loaded from, if any.
	File string `yaml:"-"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Host:        defaultHost,
		Port:        defaultPort,
		CORSOrigins: append([]string(nil), DefaultCORSOrigins...),
		LogLevel:    defaultLogLevel,
		LogFormat:   defaultLogFormat,
		Primary: Backend{
			Kind:    defaultPrimaryKind,
			URL:     defaultPrimaryURL,
			Timeout: defaultPrimaryTimeout,
		},
		Secondary: Backend{
			Kind:    defaultSecondaryKind,
			URL:     defaultSecondaryURL,
			Timeout: defaultSecondaryWait,
		},
		PrimaryTries:     defaultPrimaryTries,
		PrimaryBackoff:   defaultPrimaryBackoff,
		OpenAIModel:      defaultOpenAIModel,
		GeminiModel:      defaultGeminiModel,
		Images:           defaultImagesPerRequest,
		Width:            defaultWidth,
		Height:           defaultHeight,
		Steps:            defaultSteps,
		Guidance:         defaultGuidance,
		BusinessSteps:    defaultBusinessSteps,
		BusinessGuidance: defaultBusinessGuidance,
		Narrative:        defaultNarrativeKind,
		OllamaURL:        defaultOllamaURL,
		OllamaModel:      defaultOllamaModel,
		NarrativeModel:   defaultNarrativeModel,
		NarrativeTimeout: defaultNarrativeTimeout,
		StoryParallelism: defaultStoryParallelism,
		StateStore:       defaultStateStore,
		StateIdleTTL:     defaultStateIdleTTL,
		MaxReasks:        defaultMaxReasks,
	}
}

// RegisterFlags binds every configurable field of c to a flag on fs, using
// the current value of each field as the flag default.
func RegisterFlags(fs *pflag.FlagSet, c *Config) {
	// Server flags
	fs.StringVar(&c.Host, "host", c.Host, "HTTP listen host")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP server port")
	fs.StringSliceVar(&c.CORSOrigins, "cors-origins", c.CORSOrigins, "Allowed CORS origins")

	// Logging flags
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format (console, json)")

	// Tier flags
	fs.StringVar(&c.Primary.Kind, "primary", c.Primary.Kind, "Primary image backend (hf-space, hf-inference, openai, gemini, worker, none)")
	fs.StringVar(&c.Primary.URL, "primary-url", c.Primary.URL, "Primary image backend URL")
	fs.DurationVar(&c.Primary.Timeout, "primary-timeout", c.Primary.Timeout, "Per-attempt timeout for the primary backend")
	fs.IntVar(&c.PrimaryTries, "primary-attempts", c.PrimaryTries, "Attempts against the primary backend")
	fs.DurationVar(&c.PrimaryBackoff, "primary-backoff", c.PrimaryBackoff, "Wait between primary attempts")
	fs.StringVar(&c.Secondary.Kind, "secondary", c.Secondary.Kind, "Secondary image backend (hf-space, hf-inference, openai, gemini, worker, none)")
	fs.StringVar(&c.Secondary.URL, "secondary-url", c.Secondary.URL, "Secondary image backend URL")
	fs.DurationVar(&c.Secondary.Timeout, "secondary-timeout", c.Secondary.Timeout, "Timeout for the secondary backend")

	// Hosted model flags (keys come from the environment or file)
	fs.StringVar(&c.OpenAIModel, "openai-model", c.OpenAIModel, "OpenAI image model")
	fs.StringVar(&c.GeminiModel, "gemini-model", c.GeminiModel, "Gemini image model")

	// Generation flags
	fs.IntVar(&c.Images, "images", c.Images, "Image variations per request")
	fs.IntVar(&c.Width, "width", c.Width, "Image width in pixels")
	fs.IntVar(&c.Height, "height", c.Height, "Image height in pixels")
	fs.IntVar(&c.Steps, "steps", c.Steps, "Number of inference steps")
	fs.Float64Var(&c.Guidance, "guidance", c.Guidance, "Guidance scale")
	fs.IntVar(&c.BusinessSteps, "business-steps", c.BusinessSteps, "Inference steps for business mode")
	fs.Float64Var(&c.BusinessGuidance, "business-guidance", c.BusinessGuidance, "Guidance scale for business mode")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "Seed for style selection (0 = time-seeded)")

	// Narrative flags
	fs.StringVar(&c.Narrative, "narrative", c.Narrative, "Narrative generator (template, ollama, openai)")
	fs.StringVar(&c.OllamaURL, "ollama-url", c.OllamaURL, "Ollama API endpoint URL")
	fs.StringVar(&c.OllamaModel, "ollama-model", c.OllamaModel, "Ollama model name")
	fs.StringVar(&c.NarrativeModel, "narrative-model", c.NarrativeModel, "OpenAI chat model for narratives")
	fs.DurationVar(&c.NarrativeTimeout, "narrative-timeout", c.NarrativeTimeout, "Timeout for narrative generation")
	fs.IntVar(&c.StoryParallelism, "story-parallelism", c.StoryParallelism, "Story scenes acquired concurrently")

	// State flags
	fs.StringVar(&c.StateStore, "state-store", c.StateStore, "Conversation state store (memory, redis)")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address for the redis state store")
	fs.DurationVar(&c.StateIdleTTL, "state-idle-ttl", c.StateIdleTTL, "Idle time before conversation state is evicted")
	fs.IntVar(&c.MaxReasks, "max-reasks", c.MaxReasks, "Clarifying questions re-asked before falling back")

	fs.StringVar(&c.File, "config", c.File, "Path to a YAML config file")
}

// LoadFile decodes a YAML file over c. Unknown keys are rejected.
func LoadFile(path string, c *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.File = path
	return nil
}

// ApplyEnv overrides fields from environment variables. Empty values are
// ignored.
func ApplyEnv(c *Config, getenv func(string) string) {
	if v := getenv("HF_API_TOKEN"); v != "" {
		c.HFToken = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAIKey = v
	}
	if v := getenv("GEMINI_API_KEY"); v != "" {
		c.GeminiKey = v
	}
	if v := getenv("VIZZY_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
		c.StateStore = StoreRedis
	}
	if v := getenv("VIZZY_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}

// Resolve builds the effective Config from defaults, the YAML file named by
// the --config flag, the environment, and the flags set on fs. Only flags
// the user changed override the lower layers.
func Resolve(fs *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	c := Default()

	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		if err := LoadFile(f.Value.String(), c); err != nil {
			return nil, err
		}
	}

	ApplyEnv(c, getenv)

	// Replay changed flags on top of the merged values.
	overlay := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
	RegisterFlags(overlay, c)

	var setErr error
	fs.Visit(func(f *pflag.Flag) {
		if setErr != nil || f.Name == "config" {
			return
		}
		target := overlay.Lookup(f.Name)
		if target == nil {
			return
		}
		if src, ok := f.Value.(pflag.SliceValue); ok {
			if dst, ok := target.Value.(pflag.SliceValue); ok {
				setErr = dst.Replace(src.GetSlice())
				return
			}
		}
		if err := target.Value.Set(f.Value.String()); err != nil {
			setErr = fmt.Errorf("flag --%s: %w", f.Name, err)
		}
	})
	if setErr != nil {
		return nil, setErr
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks that all configuration values are within valid ranges.
func (c *Config) Validate() error {
	// Validate port
	if c.Port < minPort || c.Port > maxPort {
		return ErrInvalidPort
	}

	// Validate logging
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return ErrInvalidLogFormat
	}

	// Validate tiers
	if err := c.validateBackend("primary", c.Primary); err != nil {
		return err
	}
	if err := c.validateBackend("secondary", c.Secondary); err != nil {
		return err
	}
	if c.PrimaryTries < minAttempts || c.PrimaryTries > maxAttempts {
		return ErrInvalidAttempts
	}
	if c.PrimaryBackoff < 0 || c.PrimaryBackoff > maxBackoff {
		return ErrInvalidBackoff
	}

	// Validate generation parameters
	if c.Images < minImages || c.Images > maxImages {
		return ErrInvalidImageCount
	}
	if c.Width < minDimension || c.Width > maxDimension || c.Width%dimensionStep != 0 {
		return ErrInvalidWidth
	}
	if c.Height < minDimension || c.Height > maxDimension || c.Height%dimensionStep != 0 {
		return ErrInvalidHeight
	}
	if c.Steps < minSteps || c.Steps > maxSteps || c.BusinessSteps < minSteps || c.BusinessSteps > maxSteps {
		return ErrInvalidSteps
	}
	if c.Guidance < minGuidance || c.Guidance > maxGuidance || c.BusinessGuidance < minGuidance || c.BusinessGuidance > maxGuidance {
		return ErrInvalidGuidance
	}

	// Validate narrative
	switch c.Narrative {
	case NarrativeTemplate, NarrativeOllama:
	case NarrativeOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("%w: narrative openai needs OPENAI_API_KEY", ErrMissingCredentials)
		}
	default:
		return ErrInvalidNarrative
	}
	if c.NarrativeTimeout < minTimeout || c.NarrativeTimeout > maxTimeout {
		return ErrInvalidTimeout
	}
	if c.StoryParallelism < minParallelism || c.StoryParallelism > maxParallelism {
		return ErrInvalidParallelism
	}

	// Validate state
	switch c.StateStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			return ErrMissingRedisAddr
		}
	default:
		return ErrInvalidStateStore
	}
	if c.StateIdleTTL < minIdleTTL {
		return ErrInvalidIdleTTL
	}
	if c.MaxReasks < 0 || c.MaxReasks > maxReasksLimit {
		return ErrInvalidMaxReasks
	}

	return nil
}

// validateBackend checks one image tier.
func (c *Config) validateBackend(name string, b Backend) error {
	switch b.Kind {
	case BackendNone:
		return nil
	case BackendHFSpace:
		if b.URL == "" {
			return fmt.Errorf("%w: %s", ErrMissingBackendURL, name)
		}
	case BackendHFInference:
		if b.URL == "" {
			return fmt.Errorf("%w: %s", ErrMissingBackendURL, name)
		}
		if c.HFToken == "" {
			return fmt.Errorf("%w: %s backend hf-inference needs HF_API_TOKEN", ErrMissingCredentials, name)
		}
	case BackendOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("%w: %s backend openai needs OPENAI_API_KEY", ErrMissingCredentials, name)
		}
	case BackendWorker:
		if b.URL == "" {
			return fmt.Errorf("%w: %s", ErrMissingBackendURL, name)
		}
	case BackendGemini:
		if c.GeminiKey == "" {
			return fmt.Errorf("%w: %s backend gemini needs GEMINI_API_KEY", ErrMissingCredentials, name)
		}
	default:
		return fmt.Errorf("%w: %s=%q", ErrInvalidBackend, name, b.Kind)
	}

	if b.Timeout < minTimeout || b.Timeout > maxTimeout {
		return ErrInvalidTimeout
	}
	return nil
}
