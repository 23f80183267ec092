package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// OtelCollectorConfig represents the parts of an OpenTelemetry Collector
// config that say where file exporters write.
type OtelCollectorConfig struct {
	Exporters map[string]FileExporter `yaml:"exporters"`
	Service   struct {
		Pipelines map[string]Pipeline `yaml:"pipelines"`
	} `yaml:"service"`
}

// FileExporter represents a file exporter configuration.
type FileExporter struct {
	Path string `yaml:"path"`
}

// Pipeline lists the exporters a collector pipeline sends to.
type Pipeline struct {
	Exporters []string `yaml:"exporters"`
}

// ParseOtelConfig reads an OpenTelemetry Collector config file and returns
// the file source directories its "file/" exporters write under. An exporter
// writing to <root>/traces/x.jsonl or <root>/metrics/x.jsonl yields <root>.
// When the config has pipelines, only exporters used by a traces or metrics
// pipeline count.
func ParseOtelConfig(configPath string) ([]string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read otel config: %w", err)
	}

	var config OtelCollectorConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse otel config: %w", err)
	}

	used := pipelineExporters(config.Service.Pipelines)

	dirSet := make(map[string]struct{})
	for name, exporter := range config.Exporters {
		if !strings.HasPrefix(name, "file/") || exporter.Path == "" {
			continue
		}
		if used != nil {
			if _, ok := used[name]; !ok {
				continue
			}
		}
		dirSet[sourceRoot(exporter.Path)] = struct{}{}
	}

	dirs := make([]string, 0, len(dirSet))
	for dir := range dirSet {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	return dirs, nil
}

// pipelineExporters returns the exporters referenced by traces and metrics
// pipelines, or nil when there are no pipelines at all.
func pipelineExporters(pipelines map[string]Pipeline) map[string]struct{} {
	if len(pipelines) == 0 {
		return nil
	}
	used := make(map[string]struct{})
	for name, p := range pipelines {
		signal, _, _ := strings.Cut(name, "/")
		if signal != "traces" && signal != "metrics" {
			continue
		}
		for _, e := range p.Exporters {
			used[e] = struct{}{}
		}
	}
	return used
}

func sourceRoot(path string) string {
	dir := filepath.Dir(path)
	switch filepath.Base(dir) {
	case "traces", "metrics":
		return filepath.Dir(dir)
	}
	return dir
}
