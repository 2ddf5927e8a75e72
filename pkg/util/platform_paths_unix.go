//go:build !windows && !darwin

package util

import "path/filepath"

// ~/.log/<app>
func platformLogDir(appName string) string {
	return filepath.Join(homeDir(), ".log", pathSegment(appName))
}
