package app

import (
	"fmt"
	"strings"

	"github.com/small-frappuccino/tasbot/pkg/util"
)

// Version is the build version stamped into util.Version.
func Version() string {
	return util.Version
}

func formatStartupMessage(appName, version string) string {
	appName = strings.TrimSpace(appName)
	version = strings.TrimSpace(version)
	if version == "" || version == "dev" {
		return fmt.Sprintf("🚀 Starting %s (development build)...", appName)
	}
	return fmt.Sprintf("🚀 Starting %s %s...", appName, version)
}
