package startup

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hurricanerix/vizzy/internal/imagegen"
	"github.com/hurricanerix/vizzy/internal/logging"
	"github.com/hurricanerix/vizzy/internal/web"
)

// Cleanup releases what InitializeAll acquired. Errors are logged, not
// returned, so every step runs. A nil components is a no-op.
func Cleanup(components *Components, logger *logging.Logger) {
	if components == nil {
		return
	}

	logger.Debug("Starting cleanup")
	for name, b := range map[string]imagegen.Backend{"primary": components.Primary, "secondary": components.Secondary} {
		if err := closeBackend(b); err != nil {
			logger.Warn("Failed to close %s backend: %v", name, err)
		}
	}
	if components.Store != nil {
		if err := components.Store.Close(); err != nil {
			logger.Error("Failed to close state store: %v", err)
		}
	}
	_ = logger.Sync()
	logger.Debug("Cleanup complete")
}

// Run starts the web server and blocks until a shutdown signal is received.
// It handles SIGTERM and SIGINT signals for graceful shutdown.
//
// Returns nil on clean shutdown, error otherwise.
func Run(ctx context.Context, server *web.Server, logger *logging.Logger) error {
	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The web.Server itself logs "Shutting down..." and "Web server stopped"
	if err := server.ListenAndServe(shutdownCtx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
