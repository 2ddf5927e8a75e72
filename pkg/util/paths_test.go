package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathsFollowDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TAS_DATA_DIR", dir)
	t.Setenv("TAS_SETTINGS_PATH", "")
	t.Setenv("DATABASE_URL", "")

	if got, want := SettingsPath(), filepath.Join(dir, "settings.yaml"); got != want {
		t.Fatalf("settings path: want %q got %q", want, got)
	}
	if got, want := DatabaseDSN(), filepath.Join(dir, "tas_mania.db"); got != want {
		t.Fatalf("dsn: want %q got %q", want, got)
	}
	if err := EnsureDataDirs(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "qr_codes")); err != nil {
		t.Fatalf("qr dir missing: %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://tas@db/tas")
	if got := DatabaseDSN(); got != "postgres://tas@db/tas" {
		t.Fatalf("expected DATABASE_URL to win, got %q", got)
	}
}

func TestPathSegment(t *testing.T) {
	cases := map[string]string{
		"tasbot":      "tasbot",
		" TAS/Mania ": "TAS-Mania",
		`a\b:c*`:      "a-b-c-",
		"logs. ":      "logs",
		"   ":         AppName,
		"\x00":        AppName,
	}
	for in, want := range cases {
		if got := pathSegment(in); got != want {
			t.Errorf("pathSegment(%q) = %q, want %q", in, got, want)
		}
	}
}
