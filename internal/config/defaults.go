package config

import (
	"os"
	"path/filepath"
)

// Default configuration values
const (
	// DefaultMonitorCapMargin is subtracted from the platform's watch
	// descriptor limit to get a safe default monitor cap.
	DefaultMonitorCapMargin = 500

	// DefaultPoolLimitWait caps the number of tasks the pool will hold in
	// its WAIT state before applying back-pressure to the extractor.
	DefaultPoolLimitWait = 64

	// DefaultPoolLimitReady caps how many committed statements accumulate
	// before a buffered push forces an early flush.
	DefaultPoolLimitReady = 100

	// DefaultDBFileName is the SQLite file created under the data directory.
	DefaultDBFileName = "index.db"
)

// DefaultIgnorePatterns returns the default list of directory glob patterns
// excluded from crawling and monitoring.
func DefaultIgnorePatterns() []string {
	return []string{
		// Version control
		".git",
		".svn",
		".hg",

		// Dependencies / build outputs
		"node_modules",
		"vendor",
		".venv",
		"venv",
		"dist",
		"build",
		"target",
		"__pycache__",
		".next",
		".nuxt",

		// Caches
		".cache",
		".cargo",

		// Trash
		".Trash",
		"#recycle",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/minerd"
	}
	return filepath.Join(home, ".config", "minerd")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/minerd"
	}
	return filepath.Join(home, ".local", "share", "minerd")
}

// DefaultStorePath returns the default SQLite store path.
func DefaultStorePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFileName)
}

// DefaultMonitorLimit returns the default monitor cap: the platform's
// rlimit-style watch ceiling minus a safety margin. The reference backend
// doesn't expose the kernel's inotify max_user_watches, so this falls back
// to a conservative fixed budget rather than reading /proc.
func DefaultMonitorLimit() int {
	return 8192 - DefaultMonitorCapMargin
}
