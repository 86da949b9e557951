// Package startup wires vizzy's components together and runs the server.
//
// Validation is split from construction: InitializeAll builds everything
// without touching the network, then ValidateDependencies checks the
// configured endpoints. Malformed endpoints and an unreachable state store
// are fatal. An unreachable narrative generator only logs a warning because
// story mode falls back to local templates.
package startup

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/hurricanerix/vizzy/internal/client"
	"github.com/hurricanerix/vizzy/internal/config"
	"github.com/hurricanerix/vizzy/internal/logging"
	"github.com/hurricanerix/vizzy/internal/ollama"
)

var (
	// ErrInvalidEndpoint is returned for backend URLs that are not plain
	// http(s) URLs with a host.
	ErrInvalidEndpoint = errors.New("invalid endpoint URL")
	// ErrOllamaNotRunning is returned when ollama is not reachable
	ErrOllamaNotRunning = errors.New("ollama not running")
	// ErrStoreUnavailable is returned when the state store cannot be reached
	ErrStoreUnavailable = errors.New("state store unavailable")
)

const (
	// ollamaTimeout is the timeout for ollama validation request
	ollamaTimeout = 5 * time.Second
	// storeTimeout is the timeout for the state store ping
	storeTimeout = 5 * time.Second
)

// pinger is implemented by stores backed by a remote service.
type pinger interface {
	Ping(ctx context.Context) error
}

// ValidateEndpoint checks that rawURL is an absolute http or https URL.
func ValidateEndpoint(rawURL string) error {
	// SECURITY: Parse and validate URL to prevent SSRF via odd schemes
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: URL must use http or https scheme, got: %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: URL must have a host", ErrInvalidEndpoint)
	}
	return nil
}

// ValidateOllama checks that ollama is reachable and has the configured
// model.
func ValidateOllama(ctx context.Context, client *ollama.Client) error {
	ctx, cancel := context.WithTimeout(ctx, ollamaTimeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		if errors.Is(err, ollama.ErrModelNotFound) {
			return err
		}
		return fmt.Errorf("%w at %s: %v", ErrOllamaNotRunning, client.Endpoint(), err)
	}
	return nil
}

// ValidateStore pings stores that have a remote backend.
func ValidateStore(ctx context.Context, store any) error {
	p, ok := store.(pinger)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ValidateDependencies checks configured endpoints. It returns an error
// only for problems the service cannot run with.
func ValidateDependencies(ctx context.Context, cfg *config.Config, components *Components, logger *logging.Logger) error {
	for name, b := range map[string]config.Backend{"primary": cfg.Primary, "secondary": cfg.Secondary} {
		if b.URL == "" || b.Kind == config.BackendNone {
			continue
		}
		if b.Kind == config.BackendWorker {
			if _, _, err := client.ParseAddress(b.URL); err != nil {
				return fmt.Errorf("%s backend: %w", name, err)
			}
			continue
		}
		if err := ValidateEndpoint(b.URL); err != nil {
			return fmt.Errorf("%s backend: %w", name, err)
		}
	}
	if cfg.Narrative == config.NarrativeOllama {
		if err := ValidateEndpoint(cfg.OllamaURL); err != nil {
			return fmt.Errorf("ollama: %w", err)
		}
	}

	if err := ValidateStore(ctx, components.Store); err != nil {
		return err
	}

	if components.Ollama != nil {
		if err := ValidateOllama(ctx, components.Ollama); err != nil {
			logger.Warn("Story outlines will use the template narrator: %v", err)
		}
	}
	if cfg.Primary.Kind == config.BackendNone && cfg.Secondary.Kind == config.BackendNone {
		logger.Warn("No image backend configured; every image will be a placeholder")
	}
	return nil
}
