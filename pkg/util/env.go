package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/xhit/go-str2duration/v2"
)

// LoadDotEnv loads ./.env and then $HOME/.local/bin/.env. Neither file overrides
// variables that are already set, so the process environment always wins.
func LoadDotEnv() []string {
	var loaded []string
	if info, err := os.Stat(".env"); err == nil && !info.IsDir() {
		if godotenv.Load(".env") == nil {
			loaded = append(loaded, ".env")
		}
	}
	if p := localBinEnvPath(); p != "" {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			if godotenv.Load(p) == nil {
				loaded = append(loaded, p)
			}
		}
	}
	return loaded
}

func localBinEnvPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".local", "bin", ".env")
}

// LoadEnvWithLocalBinFallback ensures the specified environment variable is present.
// It tries $HOME/.local/bin/.env (non-overwriting) and then reads the variable.
//
// Returns the value when found, or a descriptive error if the variable remains unset.
func LoadEnvWithLocalBinFallback(tokenEnvName string) (string, error) {
	envPath := localBinEnvPath()
	if envPath != "" {
		if info, statErr := os.Stat(envPath); statErr == nil && !info.IsDir() {
			// godotenv.Load will NOT override variables that are already set.
			_ = godotenv.Load(envPath)
		}
	}

	if v := strings.TrimSpace(os.Getenv(tokenEnvName)); v != "" {
		return v, nil
	}

	if envPath == "" {
		return "", fmt.Errorf("environment variable %q not set and home directory unresolved", tokenEnvName)
	}
	return "", fmt.Errorf("environment variable %q not set; attempted to load fallback file %s", tokenEnvName, envPath)
}

// EnvString returns the trimmed variable or def when empty.
func EnvString(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

// EnvBool treats 1/true/yes/on (any case) as true.
func EnvBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// EnvInt64 parses the variable or returns def.
func EnvInt64(name string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// EnvDuration parses values such as "30s", "1h30m" or "7d"; invalid or non-positive values return def.
func EnvDuration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	d, err := str2duration.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
