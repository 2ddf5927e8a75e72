package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Category string

const (
	Application   Category = "application"
	DiscordEvents Category = "discord"
	Database      Category = "database"
)

// Config controls where logs go. Zero values fall back to sane defaults.
type Config struct {
	// Dir holds tasbot.log; empty disables the file sink.
	Dir        string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Stdout receives a copy of every line; nil means os.Stdout.
	Stdout io.Writer
}

var (
	mu      sync.RWMutex
	base    *slog.Logger
	rotator *lumberjack.Logger
)

// ParseLevel maps debug/info/warn/error to a slog level; unknown strings are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger builds the global JSON logger writing to stdout and a rotating file.
func SetupLogger(cfg Config) error {
	var out io.Writer = os.Stdout
	if cfg.Stdout != nil {
		out = cfg.Stdout
	}

	var rot *lumberjack.Logger
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		rot = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, "tasbot.log"),
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 30),
			Compress:   true,
		}
		out = io.MultiWriter(out, rot)
	}

	l := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}))

	mu.Lock()
	old := rotator
	base = l
	rotator = rot
	mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	slog.SetDefault(l)
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Close flushes the rotating file sink.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	return err
}

// Logger returns the category logger; before SetupLogger it wraps slog.Default().
func Logger(c Category) *slog.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l == nil {
		l = slog.Default()
	}
	return l.With("category", string(c))
}

func ApplicationLogger() *slog.Logger { return Logger(Application) }
func DiscordLogger() *slog.Logger     { return Logger(DiscordEvents) }
func DatabaseLogger() *slog.Logger    { return Logger(Database) }
