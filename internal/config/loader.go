package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader reads a Config from a YAML file and fills in any field the file
// omits with the package defaults.
type Loader struct{}

// NewLoader returns a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadConfig reads and validates the YAML file at filename.
func (l *Loader) LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", filename, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
