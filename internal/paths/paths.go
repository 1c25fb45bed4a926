// Package paths resolves the configuration directory location.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultConfigDirName is the project-local configuration directory, relative
// to the working directory.
const DefaultConfigDirName = ".fusion"

// EnvConfigDir overrides the configuration directory.
const EnvConfigDir = "FUSION_CONFIG_DIR"

const appDirName = "fusion"

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	getwd         func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	getwd:         os.Getwd,
}

// DefaultConfigDir returns the platform-specific per-user configuration
// directory.
//
// Linux:   $XDG_CONFIG_HOME/fusion (fallback ~/.config/fusion)
// macOS:   ~/Library/Application Support/fusion
// Windows: %APPDATA%/fusion
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appDirName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", appDirName), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDirName), nil
}

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > FUSION_CONFIG_DIR > $(CWD)/.fusion when it exists
// > the per-user directory when it exists > $(CWD)/.fusion.
//
// The result is always absolute. The directory itself need not exist.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}

	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	local := filepath.Join(cwd, DefaultConfigDirName)
	if isDir(local) {
		return local, nil
	}
	if user, err := DefaultConfigDir(); err == nil && isDir(user) {
		return user, nil
	}
	return local, nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
