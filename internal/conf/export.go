// export.go: writing settings back to a YAML config file.
package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SaveSettings writes the settings as YAML to path, creating parent
// directories as needed.
func SaveSettings(settings *Settings, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// createDefaultConfig materializes the registered defaults as a config file
// in the user config directory, so a first run leaves an editable template
// behind.
func createDefaultConfig() (string, error) {
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	// paths[1] is the per-user config directory.
	path := filepath.Join(paths[1], "config.yaml")

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return "", fmt.Errorf("unmarshaling default config: %w", err)
	}
	if err := SaveSettings(settings, path); err != nil {
		return "", err
	}
	return path, nil
}
