package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/livelabel/internal/errors"
)

const (
	appName   = "livelabel"
	osWindows = "windows"
)

// UserConfigDir returns the per-user configuration directory, where a default
// config.yaml is created when none exists.
func UserConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}
	if runtime.GOOS == osWindows {
		return filepath.Join(homeDir, "AppData", "Roaming", appName), nil
	}
	return filepath.Join(homeDir, ".config", appName), nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml, in
// order. When one of them already holds a config.yaml only that directory is
// returned. Otherwise the user config directory comes first.
func GetDefaultConfigPaths() ([]string, error) {
	userDir, err := UserConfigDir()
	if err != nil {
		return nil, err
	}

	searchPaths := []string{".", userDir}
	if runtime.GOOS == osWindows {
		exePath, err := os.Executable()
		if err != nil {
			return nil, errors.New(err).
				Category(errors.CategorySystem).
				Context("operation", "get-executable-path").
				Build()
		}
		searchPaths = append(searchPaths, filepath.Dir(exePath))
	} else {
		searchPaths = append(searchPaths, filepath.Join("/etc", appName))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	// Nothing found: the user directory is where a default gets written.
	return append([]string{userDir, "."}, searchPaths[2:]...), nil
}

// FindConfigFile locates the configuration file.
func FindConfigFile() (string, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "find-config-paths").
			Build()
	}

	for _, path := range configPaths {
		configFilePath := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFilePath); err == nil {
			return configFilePath, nil
		}
	}

	return "", errors.Newf("config file not found").
		Category(errors.CategoryFileIO).
		Context("operation", "find-config-file").
		Build()
}
