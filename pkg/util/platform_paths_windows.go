//go:build windows

package util

import (
	"os"
	"path/filepath"
	"strings"
)

// %APPDATA%\<app>\Logs
func platformLogDir(appName string) string {
	base := strings.TrimSpace(os.Getenv("APPDATA"))
	if base == "" {
		base = filepath.Join(homeDir(), "AppData", "Roaming")
	}
	return filepath.Join(base, pathSegment(appName), "Logs")
}
