package engine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// resultsDir resolves <repo>/<git-dir>/filter-repo (spec.md §6 "Persisted
// artifacts") and ensures it exists.
func resultsDir(repoDir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = repoDir
	out, err := cmd.Output()
	if err != nil {
		return "", preflightError("engine: not a git repository at %s: %v", repoDir, err)
	}
	gitDir := strings.TrimSpace(string(out))
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(repoDir, gitDir)
	}
	dir := filepath.Join(gitDir, "filter-repo")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", internalError("engine: create results directory %s: %v", dir, err)
	}
	return dir, nil
}

// createBackupBundle shells out to the VCS's bundle equivalent before any
// mutation (spec.md §6 "--backup [--backup-path]"; the bundle-backup
// utility itself is an out-of-scope external collaborator per spec.md
// §1 — the orchestrator only invokes it).
func createBackupBundle(repoDir, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("backup-%s.bundle", time.Now().UTC().Format("20060102T150405Z"))
	}
	if !filepath.IsAbs(path) {
		rd, err := resultsDir(repoDir)
		if err != nil {
			return "", err
		}
		path = filepath.Join(rd, path)
	}
	cmd := exec.Command("git", "bundle", "create", path, "--all")
	cmd.Dir = repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", preflightError("engine: backup bundle failed: %v\n%s", err, out)
	}
	return path, nil
}

// fetchAllRefs implements the "sensitive" mode's pre-filter step: pull
// every namespace from origin so nothing is missed before filtering.
func fetchAllRefs(repoDir string) error {
	cmd := exec.Command("git", "fetch", "origin", "+refs/*:refs/*")
	cmd.Dir = repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return preflightError("engine: sensitive-mode fetch failed: %v\n%s", err, out)
	}
	return nil
}
