package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AppName names the log directory and the CLI.
const AppName = "tasbot"

// Version is stamped at build time with -ldflags "-X .../pkg/util.Version=...".
var Version = "dev"

// DataDir holds the SQLite file, settings and the static QR image: $TAS_DATA_DIR or ./data.
func DataDir() string {
	return EnvString("TAS_DATA_DIR", "data")
}

// SettingsPath is $TAS_SETTINGS_PATH or <data>/settings.yaml.
func SettingsPath() string {
	return EnvString("TAS_SETTINGS_PATH", filepath.Join(DataDir(), "settings.yaml"))
}

// SQLitePath is the default database file.
func SQLitePath() string {
	return filepath.Join(DataDir(), "tas_mania.db")
}

// DatabaseDSN is $DATABASE_URL when set, otherwise the SQLite file.
func DatabaseDSN() string {
	return EnvString("DATABASE_URL", SQLitePath())
}

// StaticQRPath is an optional pre-rendered PIX QR image.
func StaticQRPath() string {
	return filepath.Join(DataDir(), "qr_codes", "pix_qrcode.png")
}

// LogDir is $TAS_LOG_DIR or the per-OS log directory.
func LogDir() string {
	return EnvString("TAS_LOG_DIR", platformLogDir(AppName))
}

// EnsureDataDirs creates the data layout. Safe to call multiple times.
func EnsureDataDirs() error {
	for _, d := range []string{DataDir(), filepath.Dir(StaticQRPath())} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory %s: %w", d, err)
		}
	}
	return nil
}

var pathSegmentReplacer = strings.NewReplacer(
	"/", "-", "\\", "-", "<", "-", ">", "-", ":", "-",
	"\"", "-", "|", "-", "?", "-", "*", "-", "\x00", "",
)

// pathSegment turns an application name into one directory name that is valid on every OS.
func pathSegment(name string) string {
	n := strings.TrimRight(pathSegmentReplacer.Replace(strings.TrimSpace(name)), " .")
	if n == "" {
		return AppName
	}
	return n
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil && strings.TrimSpace(h) != "" {
		return h
	}
	return "."
}
