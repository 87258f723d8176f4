package config

import (
	"os"
	"path/filepath"
	"sync"
)

const envHome = "ADAPTIVE_SELECTOR_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome resolves the directory that holds the selector cache,
// backups, and config.yaml. $ADAPTIVE_SELECTOR_HOME wins when set;
// otherwise an installed layout is detected from the executable path,
// and a bare checkout falls back to the working directory. The result
// is resolved once and cached for the process lifetime.
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome()
	})
	return homeDir
}

// GetCacheDir returns the cache subdirectory under the home, where
// the selector store and its rotating backups live.
func GetCacheDir() string {
	return filepath.Join(GetHome(), "cache")
}

func resolveHome() string {
	if env := os.Getenv(envHome); env != "" {
		return env
	}

	// Installed layout: the executable sits in a bin directory whose
	// parent is the home.
	if execPath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}
		binDir := filepath.Dir(execPath)
		if filepath.Base(binDir) == "bin" {
			return filepath.Dir(binDir)
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// ResetHome discards the cached home so tests can re-resolve it.
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
