// Build information stamped through -ldflags, e.g.
//   go build -ldflags "-X github.com/nobletooth/offline/pkg/utils.Version=v0.3.1"
// Unset values are reported as "unknown" so log lines never carry empty build attributes.

package utils

import (
	"log/slog"
	"strconv"
	"time"
)

const unknownBuildValue = "unknown"

var (
	TestMode   string // Stamped as "true" for test binaries.
	IsTestMode bool
	Version    string
	Commit     string
	BuildTime  string
	StartTime  time.Time
)

func init() {
	StartTime = time.Now()

	for _, value := range []*string{&Version, &Commit, &BuildTime} {
		if *value == "" {
			*value = unknownBuildValue
		}
	}
	if TestMode != "" {
		isTestMode, err := strconv.ParseBool(TestMode)
		if err != nil {
			slog.Warn("Failed to parse TestMode build flag, defaulting to false.", "testMode", TestMode, "error", err)
		}
		IsTestMode = isTestMode
	}
}

// HasBuildInfo reports whether the binary was stamped with a version.
func HasBuildInfo() bool {
	return Version != unknownBuildValue
}

// Uptime returns how long the process has been running.
func Uptime() time.Duration {
	return time.Since(StartTime)
}
