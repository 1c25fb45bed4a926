package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const configHeader = `# fusion configuration
# Environment variables with the upper-case key names override these values,
# as does a .env file in the working directory.

`

// Defaults returns the built-in settings, ignoring files and environment.
func Defaults() (*Settings, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("decode defaults: %w", err)
	}
	s.applyAppConfig(nil)
	return s, nil
}

// WriteDefault creates configDir and writes config.yaml with the built-in
// defaults. An existing file is left alone; the returned bool reports whether
// a file was written.
func WriteDefault(configDir string) (bool, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return false, fmt.Errorf("create config directory: %w", err)
	}

	path := filepath.Join(configDir, ConfigFileName)
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	s, err := Defaults()
	if err != nil {
		return false, err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0o644); err != nil {
		return false, fmt.Errorf("write config: %w", err)
	}
	return true, nil
}
