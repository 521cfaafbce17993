package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// collectorConfig holds the relevant slice of an OpenTelemetry Collector
// config. Only the exporters section matters here; everything else is
// ignored by the YAML decoder.
type collectorConfig struct {
	Exporters map[string]fileExporter `yaml:"exporters"`
}

// fileExporter is a file exporter entry in a collector config.
type fileExporter struct {
	Path string `yaml:"path"`
}

// CollectorExportDirs reads an OpenTelemetry Collector config file and
// returns the parent directories of its file exporter paths, sorted.
// Exporter names must start with "file" ("file", "file/traces", ...);
// other exporter types carry no path and are skipped.
func CollectorExportDirs(configPath string) ([]string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read collector config: %w", err)
	}

	var config collectorConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse collector config: %w", err)
	}

	dirSet := make(map[string]struct{})
	for name, exporter := range config.Exporters {
		if exporter.Path == "" {
			continue
		}
		if name == "file" || strings.HasPrefix(name, "file/") {
			dirSet[filepath.Dir(exporter.Path)] = struct{}{}
		}
	}

	dirs := make([]string, 0, len(dirSet))
	for dir := range dirSet {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	return dirs, nil
}
