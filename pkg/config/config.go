// Package config provides configuration loading and management for
// regionstats. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// Workers specifies how many planes to measure concurrently
		Workers int `yaml:"workers"`

		// Level is the region hierarchy granularity of the report, from 1
		// (coarsest) to 7 (finest)
		Level int `yaml:"level"`

		// GridSamples is the number of samples per in-plane axis used to
		// fit the local transform approximation
		GridSamples int `yaml:"gridSamples"`
	} `yaml:"processing"`

	// Alignment parameters
	Alignment struct {
		// XYZOrder indicates the alignment file stores points as x,y,z
		// instead of z,y,x
		XYZOrder bool `yaml:"xyzOrder"`
	} `yaml:"alignment"`

	// Output parameters
	Output struct {
		// Progress controls the progress bar during measurement
		Progress bool `yaml:"progress"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.Workers = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.Level = 7
	cfg.Processing.GridSamples = 100

	// Set default alignment parameters
	cfg.Alignment.XYZOrder = false

	// Set default output parameters
	cfg.Output.Progress = true
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
