//go:build darwin

package util

import "path/filepath"

// ~/Library/Logs/<app>
func platformLogDir(appName string) string {
	return filepath.Join(homeDir(), "Library", "Logs", pathSegment(appName))
}
