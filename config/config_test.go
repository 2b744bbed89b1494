package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func checkValue(t *testing.T, fieldname string, val, expected int64) {
	if val != expected {
		t.Fatalf("Error parsing %s, expected '%v' got '%v'", fieldname, expected, val)
	}
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	cfg := loadOrFail(t, "")
	checkValue(t, "AnalyzeMaxBlobSize", cfg.AnalyzeMaxBlobSize, defaultMaxBlobSize)
	checkValue(t, "AnalyzeReportTopN", int64(cfg.AnalyzeReportTopN), 10)
	assert.Empty(t, cfg.PathThresholds)
}

func TestValidConfigOverridesDefaults(t *testing.T) {
	const cfgString = `
analyze_max_blob_size: 5242880
analyze_report_top_n: 25
`
	cfg := loadOrFail(t, cfgString)
	checkValue(t, "AnalyzeMaxBlobSize", cfg.AnalyzeMaxBlobSize, 5242880)
	checkValue(t, "AnalyzeReportTopN", int64(cfg.AnalyzeReportTopN), 25)
}

func TestPathThresholds(t *testing.T) {
	const cfgString = `
path_thresholds:
- pattern: '\.bin$'
  max_bytes: 1048576
- pattern: '\.pack$'
  max_bytes: 104857600
`
	cfg := loadOrFail(t, cfgString)
	assert.Equal(t, 2, len(cfg.PathThresholds))
	assert.Equal(t, int64(1048576), cfg.PathThresholds[0].MaxBytes)
	assert.True(t, cfg.PathThresholds[0].RePath.MatchString("vendor/lib.bin"))
	assert.False(t, cfg.PathThresholds[0].RePath.MatchString("vendor/lib.bin.orig"))
	assert.True(t, cfg.PathThresholds[1].RePath.MatchString("objects/pack/pack-abcd.pack"))
}

func TestInvalidRegexFails(t *testing.T) {
	const cfgString = `
path_thresholds:
- pattern: '['
  max_bytes: 10
`
	ensureFail(t, cfgString, "invalid regex in path_thresholds")
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), DefaultConfigFile))
	if err != nil {
		t.Fatalf("expected missing config file to yield defaults, got error: %v", err)
	}
	checkValue(t, "AnalyzeMaxBlobSize", cfg.AnalyzeMaxBlobSize, defaultMaxBlobSize)
}

func TestLoadFileReadsContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)
	content := []byte("analyze_report_top_n: 3\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write test fixture: %v", err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err.Error())
	}
	checkValue(t, "AnalyzeReportTopN", int64(cfg.AnalyzeReportTopN), 3)
}

func ensureFail(t *testing.T, cfgString string, desc string) {
	_, err := Unmarshal([]byte(cfgString))
	if err == nil {
		t.Fatalf("Expected config err not found: %s", desc)
	}
	t.Logf("Config err: %v", err.Error())
}

func loadOrFail(t *testing.T, cfgString string) *Config {
	cfg, err := Unmarshal([]byte(cfgString))
	if err != nil {
		t.Fatalf("Failed to read config: %v", err.Error())
	}
	return cfg
}
