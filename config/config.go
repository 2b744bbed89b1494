// Package config loads the engine's local defaults file. Per spec.md
// §6, this only ever supplies default thresholds for the out-of-scope
// analyze collaborator; the engine itself is driven entirely by CLI
// flags, which always take precedence over anything loaded here.
package config

import (
	"fmt"
	"os"
	"regexp"

	yaml "gopkg.in/yaml.v2"
)

// DefaultConfigFile is the local file the orchestrator looks for under
// the repository root, per spec.md §6. Despite the ".toml" name
// inherited from the spec's CLI convention, the content is parsed as
// YAML — see DESIGN.md for why no TOML dependency was introduced.
const DefaultConfigFile = ".filter-repo-rs.toml"

const defaultMaxBlobSize = 10 * 1024 * 1024 // 10 MiB, analyze-mode default

// PathThreshold names an analyze-mode size rule: paths matching Pattern
// are flagged once they exceed MaxBytes.
type PathThreshold struct {
	Pattern  string `yaml:"pattern"`
	MaxBytes int64  `yaml:"max_bytes"`
	RePath   *regexp.Regexp
}

// Config holds the engine's local defaults.
type Config struct {
	// AnalyzeMaxBlobSize is the default blob-size threshold the (external,
	// out-of-scope) analyze collaborator reports against when the CLI
	// does not override it.
	AnalyzeMaxBlobSize int64 `yaml:"analyze_max_blob_size"`
	// AnalyzeReportTopN bounds how many largest blobs/paths the analyze
	// collaborator lists.
	AnalyzeReportTopN int `yaml:"analyze_report_top_n"`
	// PathThresholds are additional per-pattern size rules.
	PathThresholds []PathThreshold `yaml:"path_thresholds"`
}

// Unmarshal parses config content, applying defaults first.
func Unmarshal(content []byte) (*Config, error) {
	cfg := &Config{
		AnalyzeMaxBlobSize: defaultMaxBlobSize,
		AnalyzeReportTopN:  10,
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v. make sure to use 'single quotes' around strings with special characters (like match patterns)", err.Error())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for i := range c.PathThresholds {
		re, err := regexp.Compile(c.PathThresholds[i].Pattern)
		if err != nil {
			return fmt.Errorf("failed to parse %q as a regex", c.PathThresholds[i].Pattern)
		}
		c.PathThresholds[i].RePath = re
	}
	return nil
}

// LoadFile loads and parses a config file, or returns the defaults
// unmodified if the file does not exist.
func LoadFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Unmarshal(nil)
		}
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	cfg, err := Unmarshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	return cfg, nil
}
