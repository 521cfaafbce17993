// Package cli implements the tracelens command surface: the long-running
// serve command and the offline render command, plus the layered config
// loading both share.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the runtime configuration for tracelens. It can be
// populated from CLI flags, config files, or both.
type Config struct {
	// Comment field for user documentation (ignored by the application)
	Comment string `json:"comment,omitempty"`

	// Number of traces the ring buffer retains
	TraceBufferSize int `json:"trace_buffer_size,omitempty"`

	// OTLP receiver configuration
	OTLPHost string `json:"otlp_host,omitempty"`
	OTLPPort int    `json:"otlp_port,omitempty"`

	// Web UI configuration
	WebUIHost string `json:"webui_host,omitempty"`
	WebUIPort int    `json:"webui_port,omitempty"` // 0 disables the web UI

	// Directories to watch for trace files at startup
	TraceDirs []string `json:"trace_dirs,omitempty"`

	// Path to an OpenTelemetry Collector config whose file exporters
	// point at directories worth watching
	CollectorConfig string `json:"collector_config,omitempty"`

	// Logging configuration
	Verbose bool `json:"verbose,omitempty"`
}

// DefaultConfig returns a Config with sensible default values:
// 1,000 buffered traces, localhost OTLP on an ephemeral port, and the
// web UI on port 4381.
func DefaultConfig() *Config {
	return &Config{
		TraceBufferSize: 1_000,
		OTLPHost:        "127.0.0.1",
		OTLPPort:        0, // 0 means ephemeral port assignment
		WebUIHost:       "127.0.0.1",
		WebUIPort:       4381,
		Verbose:         false,
	}
}

// LoadConfigFromFile loads configuration from a JSON file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &config, nil
}

// FindProjectConfig searches for a .tracelens.json config file. It starts
// in the current directory and walks up, stopping when it finds a .git
// directory (project root) or reaches filesystem root.
func FindProjectConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for {
		configPath := filepath.Join(dir, ".tracelens.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		// Stop at a git repo root even if no config was found.
		gitPath := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitPath); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", os.ErrNotExist
}

// GlobalConfigPath returns the path to the global config file,
// ~/.config/tracelens/config.json.
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "tracelens", "config.json")
}

// MergeConfigs merges two configs with the overlay taking precedence.
// Zero-valued overlay fields leave the base untouched.
func MergeConfigs(base, overlay *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	if overlay == nil {
		return base
	}

	merged := *base

	if overlay.TraceBufferSize > 0 {
		merged.TraceBufferSize = overlay.TraceBufferSize
	}
	if overlay.OTLPHost != "" {
		merged.OTLPHost = overlay.OTLPHost
	}
	if overlay.OTLPPort != 0 {
		merged.OTLPPort = overlay.OTLPPort
	}
	if overlay.WebUIHost != "" {
		merged.WebUIHost = overlay.WebUIHost
	}
	if overlay.WebUIPort > 0 {
		merged.WebUIPort = overlay.WebUIPort
	}
	if len(overlay.TraceDirs) > 0 {
		merged.TraceDirs = overlay.TraceDirs
	}
	if overlay.CollectorConfig != "" {
		merged.CollectorConfig = overlay.CollectorConfig
	}
	if overlay.Verbose {
		merged.Verbose = overlay.Verbose
	}

	return &merged
}

// LoadEffectiveConfig loads the effective configuration by merging, in
// order: built-in defaults, the global config file, and either the
// project config (when configPath is empty) or the explicit file at
// configPath. Later sources override earlier ones.
func LoadEffectiveConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// Global config is optional; parse errors are ignored.
	if globalPath := GlobalConfigPath(); globalPath != "" {
		if globalCfg, err := LoadConfigFromFile(globalPath); err == nil {
			config = MergeConfigs(config, globalCfg)
		}
	}

	if configPath == "" {
		if projectPath, err := FindProjectConfig(); err == nil {
			projectCfg, err := LoadConfigFromFile(projectPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load project config: %w", err)
			}
			config = MergeConfigs(config, projectCfg)
		}
	} else {
		explicitCfg, err := LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = MergeConfigs(config, explicitCfg)
	}

	return config, nil
}
