// Package config locates the configuration file used by the command line
// tools. Parsing lives in internal/config; this package only answers "which
// file", searching the working directory, the XDG config directories and
// /etc in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// EnvVar names a config file when no flag is given.
const EnvVar = "CRAWLER_CONFIG"

const appDir = "seo-crawler"

var names = []string{"config.yaml", "config.yml"}

// Find returns the config file to load. An explicit path must exist. With no
// explicit path and nothing found, Find returns "" and defaults plus
// environment variables apply.
func Find(explicit string) (string, error) {
	if explicit == "" {
		explicit = os.Getenv(EnvVar)
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}
	for _, dir := range searchDirs() {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			info, err := os.Stat(candidate)
			switch {
			case err == nil && !info.IsDir():
				return candidate, nil
			case err != nil && !errors.Is(err, fs.ErrNotExist):
				return "", fmt.Errorf("stat %s: %w", candidate, err)
			}
		}
	}
	return "", nil
}

func searchDirs() []string {
	dirs := []string{"."}
	if xdg.ConfigHome != "" {
		dirs = append(dirs, filepath.Join(xdg.ConfigHome, appDir))
	}
	for _, d := range xdg.ConfigDirs {
		dirs = append(dirs, filepath.Join(d, appDir))
	}
	return append(dirs, filepath.Join("/etc", appDir))
}
