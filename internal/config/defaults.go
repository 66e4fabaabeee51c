package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "vr369ime"

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/vr369ime/
//   - Linux:   $XDG_DATA_HOME/vr369ime/ or ~/.local/share/vr369ime/
//   - Windows: %APPDATA%\vr369ime\
//
// Falls back to ~/.vr369ime elsewhere (Android builds set VR369IME_DATA_DIR).
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", appDirName)
	case "linux":
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, appDirName)
		}
		return filepath.Join(homeDir(), ".local", "share", appDirName)
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appDirName)
		}
		return filepath.Join(homeDir(), "AppData", "Roaming", appDirName)
	default:
		return filepath.Join(homeDir(), "."+appDirName)
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/vr369ime/
//   - Linux:   $XDG_CONFIG_HOME/vr369ime/ or ~/.config/vr369ime/
//   - Windows: %APPDATA%\vr369ime\
func PlatformConfigDir() string {
	if runtime.GOOS == "linux" {
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, appDirName)
		}
		return filepath.Join(homeDir(), ".config", appDirName)
	}
	return PlatformDataDir()
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

// SupportedConfigFormats returns the config file extensions Load understands.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches the working directory, then the config directory,
// then the data directory for config.<ext>. Returns "" if none exists.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir(), DataDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
