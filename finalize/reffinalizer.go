// Package finalize implements C8 (spec.md §4.8): the post-stream batch
// ref update, HEAD repositioning, and audit-artifact emission.
package finalize

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rcowham/gitfilterrs/idstate"
	"github.com/rcowham/gitfilterrs/report"
	"github.com/rcowham/gitfilterrs/rules"
)

// StagingPrefix is the private ref namespace the orchestrator writes every
// rewritten ref under during the main pass, so that a dry run (which never
// moves anything into the public namespace) leaves the repository's real
// refs completely untouched.
const StagingPrefix = "refs/filter-repo-rewrite/"

// RefEntry is one row of the eventual ref-map: the old ref's new name and
// old/new tip oids. Delete is true when the rename rules give OldRef a
// different name, so the old name is removed once NewRef is created.
// NewOID is the zero sentinel when no rewritten tip exists for the ref,
// in which case OldRef is deleted outright.
// StagingRef is where the importer actually wrote the rewritten tip (see
// Finalizer.StagingPrefix); it is removed once NewRef is created so the
// repository ends the run with only the public ref namespace populated.
type RefEntry struct {
	OldRef     string
	NewRef     string
	StagingRef string
	OldOID     string
	NewOID     string
	Delete     bool
}

// Finalizer drives the ref-update batch and audit writes for one run.
type Finalizer struct {
	RepoDir string
	Logger  *logrus.Logger

	Marks        *idstate.MarkTable
	BranchRename *rules.RenameTable
	TagRename    *rules.RenameTable

	// StagingPrefix is the private ref namespace the orchestrator directed
	// the importer to write every rewritten ref under, so that a dry run
	// (which never calls ApplyRefUpdates) leaves the repository's real
	// refs untouched. "refs/x/y" becomes "<StagingPrefix>x/y".
	StagingPrefix string
}

// ComputeRefPlan builds the ref-map rows from the refs observed on the
// input stream. refOldOID maps each original ref to the original-oid last
// seen for it on the input (the pre-rewrite tip).
//
// Unlike commits, annotated tag objects carry no mark in the fast-export
// stream, so their post-rewrite oid can't be read from the mark table.
// Since the importer wrote every ref under its staging name directly from
// the stream's own reset/commit/tag records, this reads each staging
// ref's current oid straight from the repository instead of threading
// mark lookups through both commits and tags.
func (f *Finalizer) ComputeRefPlan(refOldOID map[string]string) ([]RefEntry, error) {
	refs := make([]string, 0, len(refOldOID))
	for ref := range refOldOID {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	var plan []RefEntry
	for _, ref := range refs {
		newRef := f.renameRef(ref)
		stagingRef := f.toStaging(newRef)
		newOID, err := f.resolveRef(stagingRef)
		if err != nil {
			newOID = idstate.ZeroOID
		}
		entry := RefEntry{OldRef: ref, NewRef: newRef, StagingRef: stagingRef, OldOID: refOldOID[ref], NewOID: newOID}
		if newRef != ref {
			entry.Delete = true
		}
		plan = append(plan, entry)
	}
	return plan, nil
}

// toStaging maps a final ref name into the private staging namespace.
func (f *Finalizer) toStaging(ref string) string {
	return strings.Replace(ref, "refs/", f.StagingPrefix, 1)
}

// resolveRef reads ref's current target oid from the repository.
func (f *Finalizer) resolveRef(ref string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--verify", "--quiet", ref)
	cmd.Dir = f.RepoDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("finalize: resolve %s: %w", ref, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (f *Finalizer) renameRef(ref string) string {
	if strings.HasPrefix(ref, "refs/tags/") {
		return f.TagRename.ApplyOrSame(ref)
	}
	return f.BranchRename.ApplyOrSame(ref)
}

// ApplyRefUpdates issues a single batched `git update-ref --stdin`
// transaction (spec.md §4.8 step 3): create/update each new ref from its
// staging tip, remove the staging ref now that it has a public home, then
// delete every old ref whose name changed, only after confirming the new
// ref was created in the same transaction.
func (f *Finalizer) ApplyRefUpdates(plan []RefEntry) error {
	var b strings.Builder
	b.WriteString("start\n")
	for _, e := range plan {
		if e.NewOID == idstate.ZeroOID {
			fmt.Fprintf(&b, "delete %s\n", e.OldRef)
			continue
		}
		fmt.Fprintf(&b, "update %s %s\n", e.NewRef, e.NewOID)
		fmt.Fprintf(&b, "delete %s\n", e.StagingRef)
		if e.Delete {
			fmt.Fprintf(&b, "delete %s\n", e.OldRef)
		}
	}
	b.WriteString("commit\n")

	cmd := exec.Command("git", "update-ref", "--stdin")
	cmd.Dir = f.RepoDir
	cmd.Stdin = strings.NewReader(b.String())
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("finalize: batched ref update failed: %w\n%s", err, out)
	}
	return nil
}

// RepositionHead implements spec.md §4.8 step 4: keep HEAD's prior
// symbolic target if it survived under its new name; else retarget via
// the branch-rename table; else point at the first updated branch in
// lexicographic order.
func (f *Finalizer) RepositionHead(priorSymbolicRef string, plan []RefEntry) (string, error) {
	byOld := make(map[string]RefEntry, len(plan))
	for _, e := range plan {
		byOld[e.OldRef] = e
	}

	candidate := priorSymbolicRef
	if e, ok := byOld[priorSymbolicRef]; ok && e.NewOID != idstate.ZeroOID {
		candidate = e.NewRef
	} else if renamed := f.renameRef(priorSymbolicRef); renamed != priorSymbolicRef {
		candidate = renamed
	} else {
		var branches []string
		for _, e := range plan {
			if strings.HasPrefix(e.NewRef, "refs/heads/") && e.NewOID != idstate.ZeroOID {
				branches = append(branches, e.NewRef)
			}
		}
		if len(branches) == 0 {
			return priorSymbolicRef, nil
		}
		sort.Strings(branches)
		candidate = branches[0]
	}

	cmd := exec.Command("git", "symbolic-ref", "HEAD", candidate)
	cmd.Dir = f.RepoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("finalize: reposition HEAD to %s: %w\n%s", candidate, err, out)
	}
	return candidate, nil
}

// RemoveStagingRefs deletes every staging ref named in plan without
// touching anything else. Used by dry-run, which never calls
// ApplyRefUpdates, to still leave the repository's real refs untouched.
func (f *Finalizer) RemoveStagingRefs(plan []RefEntry) error {
	var b strings.Builder
	b.WriteString("start\n")
	any := false
	for _, e := range plan {
		if e.NewOID == idstate.ZeroOID {
			continue
		}
		fmt.Fprintf(&b, "delete %s\n", e.StagingRef)
		any = true
	}
	b.WriteString("commit\n")
	if !any {
		return nil
	}
	cmd := exec.Command("git", "update-ref", "--stdin")
	cmd.Dir = f.RepoDir
	cmd.Stdin = strings.NewReader(b.String())
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("finalize: removing staging refs failed: %w\n%s", err, out)
	}
	return nil
}

// RemoveOrigin removes the "origin" remote, preventing an accidental push
// of the rewritten history back to the pre-rewrite remote (spec.md §4.8
// step 6).
func (f *Finalizer) RemoveOrigin() error {
	cmd := exec.Command("git", "remote", "remove", "origin")
	cmd.Dir = f.RepoDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "No such remote") {
			return nil
		}
		return fmt.Errorf("finalize: remove origin: %w\n%s", err, out)
	}
	return nil
}

// WriteMaps writes the commit-map and ref-map audit artifacts.
// commitMarks enumerates every commit mark observed on the input
// (pruned or not); pruned marks (per idstate.PruneSet) write the zero
// sentinel as their new oid.
func WriteMaps(marks *idstate.MarkTable, pruneIsPruned func(mark int) bool, commitMarks []int, commitMapPath, refMapPath string, plan []RefEntry) error {
	cm, err := createFile(commitMapPath)
	if err != nil {
		return err
	}
	defer cm.Close()
	cmw := report.NewCommitMapWriter(cm)
	sort.Ints(commitMarks)
	for _, mark := range commitMarks {
		info := marks.Get(mark)
		if info == nil || info.OriginalOID == "" {
			continue
		}
		newOID := idstate.ZeroOID
		if !pruneIsPruned(mark) && info.NewOID != "" {
			newOID = info.NewOID
		}
		if err := cmw.WriteEntry(info.OriginalOID, newOID); err != nil {
			return err
		}
	}

	rm, err := createFile(refMapPath)
	if err != nil {
		return err
	}
	defer rm.Close()
	rmw := report.NewRefMapWriter(rm)
	for _, e := range plan {
		if err := rmw.WriteEntry(e.OldOID, e.NewOID, e.OldRef, e.NewRef); err != nil {
			return err
		}
	}
	return nil
}
