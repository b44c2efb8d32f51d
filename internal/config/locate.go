package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (
	appName        = "audio-tag-editor"
	configFileName = "config.xml"
)

// Locate resolves which config file to load. Precedence: explicit path,
// CONFIG_PATH, an existing file in the XDG config dirs, then a file next
// to the executable (created with defaults on first run).
func Locate(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	for _, name := range []string{configFileName, "config.yaml", "config.yml"} {
		if p, err := xdg.SearchConfigFile(filepath.Join(appName, name)); err == nil {
			return p
		}
	}

	exePath, err := os.Executable()
	if err != nil {
		return configFileName
	}
	return filepath.Join(filepath.Dir(exePath), "AudioTagEditor.config.xml")
}
