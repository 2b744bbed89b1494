package finalize

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/gitfilterrs/idstate"
	"github.com/rcowham/gitfilterrs/rules"
)

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, out)
	return string(out)
}

func newTestRepo(t *testing.T) string {
	dir := t.TempDir()
	runGit(t, dir, "init", "-q", "-b", "main")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a\n"), 0o644))
	runGit(t, dir, "add", "-A")
	runGit(t, dir, "commit", "-q", "-m", "initial")
	return dir
}

func TestApplyRefUpdatesPromotesStagingRef(t *testing.T) {
	repo := newTestRepo(t)
	tip := strings.TrimSpace(runGit(t, repo, "rev-parse", "HEAD"))
	runGit(t, repo, "update-ref", "refs/filter-repo-rewrite/heads/main", tip)

	f := &Finalizer{
		RepoDir:       repo,
		BranchRename:  &rules.RenameTable{},
		TagRename:     &rules.RenameTable{},
		StagingPrefix: StagingPrefix,
	}
	plan := []RefEntry{{
		OldRef:     "refs/heads/main",
		NewRef:     "refs/heads/main",
		StagingRef: "refs/filter-repo-rewrite/heads/main",
		OldOID:     tip,
		NewOID:     tip,
	}}

	require.NoError(t, f.ApplyRefUpdates(plan))

	got := strings.TrimSpace(runGit(t, repo, "rev-parse", "refs/heads/main"))
	assert.Equal(t, tip, got)

	cmd := exec.Command("git", "rev-parse", "--verify", "--quiet", "refs/filter-repo-rewrite/heads/main")
	cmd.Dir = repo
	assert.Error(t, cmd.Run(), "staging ref should have been removed after promotion")
}

func TestApplyRefUpdatesHandlesRename(t *testing.T) {
	repo := newTestRepo(t)
	tip := strings.TrimSpace(runGit(t, repo, "rev-parse", "HEAD"))
	runGit(t, repo, "update-ref", "refs/filter-repo-rewrite/heads/renamed", tip)

	f := &Finalizer{RepoDir: repo, StagingPrefix: StagingPrefix}
	plan := []RefEntry{{
		OldRef:     "refs/heads/main",
		NewRef:     "refs/heads/renamed",
		StagingRef: "refs/filter-repo-rewrite/heads/renamed",
		OldOID:     tip,
		NewOID:     tip,
		Delete:     true,
	}}

	require.NoError(t, f.ApplyRefUpdates(plan))

	cmd := exec.Command("git", "rev-parse", "--verify", "--quiet", "refs/heads/main")
	cmd.Dir = repo
	assert.Error(t, cmd.Run(), "old ref name should be gone")

	got := strings.TrimSpace(runGit(t, repo, "rev-parse", "refs/heads/renamed"))
	assert.Equal(t, tip, got)
}

func TestRemoveStagingRefsLeavesPublicRefsUntouched(t *testing.T) {
	repo := newTestRepo(t)
	tip := strings.TrimSpace(runGit(t, repo, "rev-parse", "HEAD"))
	runGit(t, repo, "update-ref", "refs/filter-repo-rewrite/heads/main", tip)

	f := &Finalizer{RepoDir: repo, StagingPrefix: StagingPrefix}
	plan := []RefEntry{{
		OldRef:     "refs/heads/main",
		NewRef:     "refs/heads/main",
		StagingRef: "refs/filter-repo-rewrite/heads/main",
		OldOID:     tip,
		NewOID:     tip,
	}}

	require.NoError(t, f.RemoveStagingRefs(plan))

	got := strings.TrimSpace(runGit(t, repo, "rev-parse", "refs/heads/main"))
	assert.Equal(t, tip, got)

	cmd := exec.Command("git", "rev-parse", "--verify", "--quiet", "refs/filter-repo-rewrite/heads/main")
	cmd.Dir = repo
	assert.Error(t, cmd.Run())
}

func TestSubstitutePlaceholdersUsesNewOID(t *testing.T) {
	marks := idstate.NewMarkTable()
	marks.Observe(1, "aaaa111111111111111111111111111111111111")
	marks.Get(1).NewOID = "bbbb222222222222222222222222222222222222"

	msg := "see " + idstate.FormatPlaceholder(1, 7) + " for context"
	got := substitutePlaceholders(msg, marks)
	assert.Equal(t, "see bbbb222 for context", got)
}

func TestSubstitutePlaceholdersFallsBackToOriginalOID(t *testing.T) {
	marks := idstate.NewMarkTable()
	marks.Observe(2, "cccc333333333333333333333333333333333333")

	msg := "see " + idstate.FormatPlaceholder(2, 7) + " for context"
	got := substitutePlaceholders(msg, marks)
	assert.Equal(t, "see cccc333 for context", got)
}

func TestSubstitutePlaceholdersDropsUnknownMark(t *testing.T) {
	marks := idstate.NewMarkTable()
	msg := "see " + idstate.FormatPlaceholder(9, 7) + " for context"
	got := substitutePlaceholders(msg, marks)
	assert.Equal(t, "see  for context", got)
}

func TestComputeRefPlanMarksDeletedRefWithZeroSentinel(t *testing.T) {
	repo := newTestRepo(t)

	f := &Finalizer{
		RepoDir:       repo,
		BranchRename:  &rules.RenameTable{},
		TagRename:     &rules.RenameTable{},
		StagingPrefix: StagingPrefix,
	}
	plan, err := f.ComputeRefPlan(map[string]string{"refs/heads/gone": "deadbeef"})
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, idstate.ZeroOID, plan[0].NewOID)
}
