// Tests for gitfilterrs

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/gitfilterrs/internal/engine"
	"github.com/rcowham/gitfilterrs/rules"
)

var debug bool = false
var logger *logrus.Logger

func init() {
	flag.BoolVar(&debug, "debug", false, "Set to have debug logging for tests.")
}

func createLogger() *logrus.Logger {
	if logger != nil {
		return logger
	}
	logger = logrus.New()
	logger.Level = logrus.InfoLevel
	if debug {
		logger.Level = logrus.DebugLevel
	}
	return logger
}

func runCmd(t *testing.T, dir, cmdLine string) string {
	t.Helper()
	cmd := exec.Command("/bin/bash", "-c", cmdLine)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "command %q failed: %s", cmdLine, out)
	return string(out)
}

func createGitRepo(t *testing.T) string {
	d := t.TempDir()
	runCmd(t, d, "git init -q -b main")
	runCmd(t, d, "git config user.email test@example.com")
	runCmd(t, d, "git config user.name Test")
	return d
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func headTreeFiles(t *testing.T, repo string) []string {
	t.Helper()
	out := runCmd(t, repo, "git ls-tree -r --name-only HEAD")
	out = strings.TrimSpace(out)
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func blobContains(t *testing.T, repo, ref, path, substr string) bool {
	t.Helper()
	cmd := exec.Command("/bin/bash", "-c", fmt.Sprintf("git show %s:%s", ref, path))
	cmd.Dir = repo
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git show %s:%s failed: %s", ref, path, out)
	return strings.Contains(string(out), substr)
}

// runEngine is the shared harness every scenario test uses: build an
// engine.Options against repo, always with WriteReport on and Quiet off
// so report.txt is written, and fail the test on error.
func runEngine(t *testing.T, repo string, mutate func(*engine.Options)) *engine.Result {
	t.Helper()
	opts := &engine.Options{
		RepoDir:     repo,
		WriteReport: true,
	}
	if mutate != nil {
		mutate(opts)
	}
	result, err := engine.Run(createLogger(), opts)
	require.NoError(t, err)
	return result
}

// --- S1: path subset -------------------------------------------------

func TestPathSubsetKeepsOnlyMatchedTree(t *testing.T) {
	repo := createGitRepo(t)
	writeFile(t, repo, "a.txt", "root file\n")
	writeFile(t, repo, "sub/b.txt", "b\n")
	writeFile(t, repo, "sub/c.txt", "c\n")
	runCmd(t, repo, "git add -A && git commit -q -m initial")

	selector := &rules.PathSelector{Rules: []rules.PathRule{rules.NewPrefixRule("sub/")}}
	runEngine(t, repo, func(o *engine.Options) {
		o.PathSelector = selector
	})

	files := headTreeFiles(t, repo)
	assert.ElementsMatch(t, []string{"sub/b.txt", "sub/c.txt"}, files)
}

// --- S2: subdirectory filter ------------------------------------------

func TestSubdirectoryFilterRerootsTree(t *testing.T) {
	repo := createGitRepo(t)
	writeFile(t, repo, "a.txt", "root file\n")
	writeFile(t, repo, "sub/b.txt", "b\n")
	writeFile(t, repo, "sub/c.txt", "c\n")
	runCmd(t, repo, "git add -A && git commit -q -m initial")

	selector := &rules.PathSelector{Rules: []rules.PathRule{rules.NewPrefixRule("sub/")}}
	rename := &rules.RenameTable{Entries: []rules.PrefixRename{{Old: "sub/", New: ""}}}
	runEngine(t, repo, func(o *engine.Options) {
		o.PathSelector = selector
		o.PathRename = rename
	})

	files := headTreeFiles(t, repo)
	assert.ElementsMatch(t, []string{"b.txt", "c.txt"}, files)
}

// --- S3: oversize blob strip --------------------------------------------

func TestMaxBlobSizeStripsOversizeBlobs(t *testing.T) {
	repo := createGitRepo(t)
	big := strings.Repeat("x", 2*1024*1024)
	writeFile(t, repo, "big.bin", big)
	writeFile(t, repo, "small.txt", "0123456789")
	runCmd(t, repo, "git add -A && git commit -q -m initial")

	result := runEngine(t, repo, func(o *engine.Options) {
		o.MaxBlobSize = 1024
	})

	files := headTreeFiles(t, repo)
	assert.NotContains(t, files, "big.bin")
	assert.Contains(t, files, "small.txt")
	assert.Equal(t, 1, result.Stats.BlobsStrippedSize)
}

// --- S4: literal secret redaction ---------------------------------------

func TestReplaceTextRedactsSecretEverywhere(t *testing.T) {
	repo := createGitRepo(t)
	writeFile(t, repo, "config.txt", "API_KEY=abc123\nother=1\n")
	runCmd(t, repo, "git add -A && git commit -q -m initial")

	table, err := rules.ParseReplaceRulesFile(strings.NewReader("API_KEY=abc123==>REDACTED\n"))
	require.NoError(t, err)

	result := runEngine(t, repo, func(o *engine.Options) {
		o.BlobReplace = table
	})

	assert.True(t, blobContains(t, repo, "HEAD", "config.txt", "REDACTED"))
	assert.False(t, blobContains(t, repo, "HEAD", "config.txt", "abc123"))
	assert.Equal(t, 1, result.Stats.BlobsContentRewritten)

	commitMap, err := os.ReadFile(filepath.Join(result.ResultsDir, "commit-map"))
	require.NoError(t, err)
	assert.NotEmpty(t, commitMap)
}

// --- S5: tag rename with dedup -------------------------------------------

func TestTagRenameMovesAnnotatedTag(t *testing.T) {
	repo := createGitRepo(t)
	writeFile(t, repo, "a.txt", "a\n")
	runCmd(t, repo, "git add -A && git commit -q -m initial")
	runCmd(t, repo, "git tag -a v1.0 -m release")

	opts, err := buildOptions(repo, optFlags{tagRename: []string{"v1.:release/v1."}})
	require.NoError(t, err)
	runEngine(t, repo, func(o *engine.Options) {
		o.TagRename = opts.TagRename
	})

	tags := strings.Fields(runCmd(t, repo, "git tag -l"))
	assert.Contains(t, tags, "release/v1.0")
	assert.NotContains(t, tags, "v1.0")
}

// --- dry-run leaves refs untouched ----------------------------------------

func TestDryRunLeavesRepositoryUntouched(t *testing.T) {
	repo := createGitRepo(t)
	writeFile(t, repo, "a.txt", "a\n")
	runCmd(t, repo, "git add -A && git commit -q -m initial")
	before := strings.TrimSpace(runCmd(t, repo, "git rev-parse HEAD"))

	selector := &rules.PathSelector{Rules: []rules.PathRule{rules.NewPrefixRule("nope/")}}
	result := runEngine(t, repo, func(o *engine.Options) {
		o.PathSelector = selector
		o.DryRun = true
	})

	after := strings.TrimSpace(runCmd(t, repo, "git rev-parse HEAD"))
	assert.Equal(t, before, after)

	refs := runCmd(t, repo, "git for-each-ref")
	assert.NotContains(t, refs, "refs/filter-repo-rewrite/")
	assert.NotEmpty(t, result.ResultsDir)
}

// --- idempotence on identity rules ----------------------------------------

func TestIdentityRewritePreservesOIDs(t *testing.T) {
	repo := createGitRepo(t)
	writeFile(t, repo, "a.txt", "a\n")
	runCmd(t, repo, "git add -A && git commit -q -m initial")
	writeFile(t, repo, "b.txt", "b\n")
	runCmd(t, repo, "git add -A && git commit -q -m second")
	before := strings.TrimSpace(runCmd(t, repo, "git rev-parse HEAD"))

	runEngine(t, repo, nil)

	after := strings.TrimSpace(runCmd(t, repo, "git rev-parse HEAD"))
	assert.Equal(t, before, after)
}
