package errutil

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/small-frappuccino/tasbot/pkg/log"
)

// Helpers that run an operation, log its failure with the right category and hand the
// error back to the caller.

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

// InitializeGlobalErrorHandler sets the logger used by the helpers. The last non-nil logger wins.
func InitializeGlobalErrorHandler(l *slog.Logger) error {
	if l == nil {
		return fmt.Errorf("nil logger provided")
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

func current(c log.Category) *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l.With("category", string(c))
	}
	return log.Logger(c)
}

// HandleDiscordError executes fn and logs any error as a Discord API failure.
// The error is returned unmodified.
func HandleDiscordError(operation string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}
	err := fn()
	if err == nil {
		return nil
	}
	current(log.DiscordEvents).Error("❌ Discord operation failed", "operation", operation, "error", err)
	return err
}

// HandleConfigError executes fn and logs any error as a configuration failure.
// It returns a wrapped error with context about the operation and path.
func HandleConfigError(operation, path string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}
	err := fn()
	if err == nil {
		return nil
	}
	current(log.Application).Error("❌ Config operation failed", "operation", operation, "path", path, "error", err)
	return fmt.Errorf("config %s %s: %w", operation, path, err)
}

// HandleDatabaseError executes fn and logs any error as a database failure.
func HandleDatabaseError(operation string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}
	err := fn()
	if err == nil {
		return nil
	}
	current(log.Database).Error("❌ Database operation failed", "operation", operation, "error", err)
	return fmt.Errorf("%s: %w", operation, err)
}
