package engine

import (
	"fmt"
	"os/exec"
	"strings"
)

// resolveSymbolicRef reads ref's symbolic target (e.g. "HEAD" ->
// "refs/heads/main"). It errors if ref is not symbolic, which the
// caller treats as "nothing to reposition" rather than a run failure.
func resolveSymbolicRef(repoDir, ref string) (string, error) {
	cmd := exec.Command("git", "symbolic-ref", ref)
	cmd.Dir = repoDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("engine: resolve symbolic ref %s: %w", ref, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// defaultSanityChecker is the engine's built-in stand-in for the
// out-of-scope preflight collaborator (spec.md §1): it only confirms the
// working tree is clean, since a rewrite discards any uncommitted state
// when it repositions branches. A caller wanting the fuller fresh-clone
// checks spec.md describes should supply its own SanityChecker.
func defaultSanityChecker(repoDir string) error {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = repoDir
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("engine: sanity check: %w", err)
	}
	if strings.TrimSpace(string(out)) != "" {
		return fmt.Errorf("engine: working tree is not clean")
	}
	return nil
}

// runCleanup implements spec.md §4.9's optional --cleanup step: expire
// every reflog entry immediately, then gc away the now-unreachable
// pre-rewrite objects.
func runCleanup(repoDir string) error {
	expire := exec.Command("git", "reflog", "expire", "--expire=now", "--all")
	expire.Dir = repoDir
	if out, err := expire.CombinedOutput(); err != nil {
		return fmt.Errorf("engine: reflog expire: %w\n%s", err, out)
	}
	gc := exec.Command("git", "gc", "--prune=now")
	gc.Dir = repoDir
	if out, err := gc.CombinedOutput(); err != nil {
		return fmt.Errorf("engine: gc: %w\n%s", err, out)
	}
	return nil
}
