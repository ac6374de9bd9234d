package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".dashcsv"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the structure of the .dashcsv configuration file.
type File struct {
	Selectors   Selectors       `yaml:"selectors,omitempty"`
	Browser     BrowserFile     `yaml:"browser,omitempty"`
	Traversal   TraversalFile   `yaml:"traversal,omitempty"`
	Consolidate ConsolidateFile `yaml:"consolidate,omitempty"`
}

// BrowserFile holds browser settings.
type BrowserFile struct {
	Bin            string `yaml:"bin,omitempty"`
	ViewportWidth  int    `yaml:"viewportWidth,omitempty"`
	ViewportHeight int    `yaml:"viewportHeight,omitempty"`
}

// TraversalFile holds panel traversal limits.
type TraversalFile struct {
	MaxPasses     int `yaml:"maxPasses,omitempty"`
	MaxIdlePasses int `yaml:"maxIdlePasses,omitempty"`
}

// ConsolidateFile holds consolidation defaults.
type ConsolidateFile struct {
	Input       string `yaml:"input,omitempty"`
	Output      string `yaml:"output,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
}

// LoadConfigFile loads a YAML configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. configPath, if specified
// 2. .dashcsv in the current directory
// 3. config.yaml in the XDG config directory
// 4. .dashcsv in the user's home directory
//
// Returns the path of the first existing file, or "" if none exists.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
