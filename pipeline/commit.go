package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	libfastimport "github.com/rcowham/go-libgitfastimport"

	"github.com/rcowham/gitfilterrs/idstate"
	"github.com/rcowham/gitfilterrs/record"
)

func markRefToInt(ref string) (int, bool) {
	if !strings.HasPrefix(ref, ":") {
		return 0, false
	}
	n, err := strconv.Atoi(ref[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// RenameCommitRef applies step 1 of spec.md §4.6: rename via the
// branch-rename table, deferring to the tag-rename table for the
// annotated-tag-as-commit case (the commit's own ref already lives, or
// lands, under refs/tags/).
func (c *Context) RenameCommitRef(ref string) string {
	if strings.HasPrefix(ref, "refs/tags/") {
		return c.TagRename.ApplyOrSame(ref)
	}
	renamed := c.BranchRename.ApplyOrSame(ref)
	if strings.HasPrefix(renamed, "refs/tags/") {
		return c.TagRename.ApplyOrSame(ref)
	}
	return renamed
}

// RewriteMessage applies step 2: the literal/regex replacement table,
// then short-hash rewriting of any 7-40 char hex run that is an
// unambiguous original-oid prefix.
//
// The replacement itself cannot be completed here: the new oid a short
// hash should resolve to is only known once the importer has finished
// writing objects (spec.md's C5 mark -> new-oid table is "filled
// post-import"). Instead this leaves a deferred placeholder token
// (idstate.FormatPlaceholder) naming the mark and display width; the
// orchestrator's finalize.RewriteShortHashes pass substitutes the real
// prefixes once marks are resolved.
func (c *Context) RewriteMessage(msg string) string {
	rewritten, changed := c.MessageReplace.Apply([]byte(msg))
	msg = string(rewritten)
	if changed {
		c.Stats.MessagesRewritten++
	}
	return c.rewriteShortHashes(msg)
}

func (c *Context) rewriteShortHashes(msg string) string {
	var b strings.Builder
	i := 0
	n := len(msg)
	for i < n {
		if !isHexByte(msg[i]) {
			b.WriteByte(msg[i])
			i++
			continue
		}
		j := i
		for j < n && isHexByte(msg[j]) {
			j++
		}
		run := msg[i:j]
		if len(run) >= 7 && len(run) <= 40 {
			if mark, ok := c.Hex.Lookup(run); ok {
				b.WriteString(idstate.FormatPlaceholder(mark, len(run)))
				c.Stats.ShortHashesRewritten++
				i = j
				continue
			}
			c.Stats.ShortHashesAmbiguous++
		}
		b.WriteString(run)
		i = j
	}
	return b.String()
}

func isHexByte(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

type pendingChange struct {
	fc       record.FileChange
	origPath string
}

// FilterFileChanges applies step 3: path selection, dropped-blob
// rewriting, path rename, Windows sanitization, and collision
// resolution. deleteAll directives pass through untouched.
func (c *Context) FilterFileChanges(changes []record.FileChange) ([]record.FileChange, error) {
	order := make([]string, 0, len(changes))
	pending := make(map[string]*pendingChange, len(changes))
	var passthrough []record.FileChange

	for _, fc := range changes {
		if fc.Kind == record.FileDeleteAll {
			passthrough = append(passthrough, fc)
			continue
		}
		origPath := fc.Path
		if !c.PathSelector.Include(origPath) {
			c.Stats.PathsExcluded++
			continue
		}
		if fc.Kind == record.FileModify && c.blobRefIsDropped(fc.DataRef, fc.Mode) {
			fc = record.FileChange{Kind: record.FileDelete, Path: fc.Path}
		}
		newPath := origPath
		if renamed, matched := c.PathRename.Apply(origPath); matched {
			newPath = renamed
		}
		if newPath == "" {
			continue
		}
		newPath = c.sanitizePath(newPath)
		fc.Path = newPath

		if err := c.resolveCollision(pending, &order, origPath, fc); err != nil {
			return nil, err
		}
	}

	out := make([]record.FileChange, 0, len(order)+len(passthrough))
	out = append(out, passthrough...)
	for _, p := range order {
		out = append(out, pending[p].fc)
	}
	return out, nil
}

func (c *Context) blobRefIsDropped(dataRef string, mode libfastimport.Mode) bool {
	if mark, ok := markRefToInt(dataRef); ok {
		return c.DroppedBlobs[mark]
	}
	if mode == 0160000 { // gitlink / submodule commit reference, not a blob
		return false
	}
	if len(dataRef) == 40 && c.StripIDs[dataRef] {
		return true
	}
	return false
}

// resolveCollision implements spec.md §4.6 step 3's collision policy.
func (c *Context) resolveCollision(pending map[string]*pendingChange, order *[]string, origPath string, fc record.FileChange) error {
	existing, ok := pending[fc.Path]
	if !ok {
		pending[fc.Path] = &pendingChange{fc: fc, origPath: origPath}
		*order = append(*order, fc.Path)
		return nil
	}
	switch {
	case existing.fc.Kind == record.FileDelete && fc.Kind == record.FileModify:
		existing.fc = fc
		existing.origPath = origPath
		c.Stats.PathCollisionsResolved++
	case existing.fc.Kind == record.FileModify && fc.Kind == record.FileDelete:
		c.Stats.PathCollisionsResolved++
		// elide the delete, keep the modify
	case existing.fc.Kind == record.FileDelete && fc.Kind == record.FileDelete:
		c.Stats.PathCollisionsResolved++
	case existing.fc.Kind == record.FileModify && fc.Kind == record.FileModify:
		if existing.fc.Mode == fc.Mode && existing.fc.DataRef == fc.DataRef {
			c.Stats.PathCollisionsResolved++
			return nil
		}
		return fmt.Errorf("pipeline: rule collision at path %q: distinct modifies from %q and %q",
			fc.Path, existing.origPath, origPath)
	}
	return nil
}

// ParentInfo is the result of step 5's parent fixup.
type ParentInfo struct {
	From  string
	Merge []string
}

// FixupParents implements step 5: resolve from/merge marks through the
// prune set and dedup, preserving first-parent order. A merge that
// collapses to a single distinct parent is no longer a merge.
func (c *Context) FixupParents(from string, merge []string) ParentInfo {
	seen := make(map[int]bool)
	var resolved []int

	addParent := func(ref string) {
		mark, ok := markRefToInt(ref)
		if !ok {
			return
		}
		r := c.Prune.Resolve(mark)
		if r == 0 || seen[r] {
			return
		}
		seen[r] = true
		resolved = append(resolved, r)
	}

	addParent(from)
	for _, m := range merge {
		addParent(m)
	}

	if len(resolved) == 0 {
		return ParentInfo{}
	}
	info := ParentInfo{From: fmt.Sprintf(":%d", resolved[0])}
	for _, m := range resolved[1:] {
		info.Merge = append(info.Merge, fmt.Sprintf(":%d", m))
	}
	if len(merge) > 0 && len(info.Merge) == 0 {
		c.Stats.MergesCollapsed++
	}
	return info
}

// ProcessCommit runs C6 steps 1-5 (spec.md §4.6) and returns either the
// rewritten commit ready for the caller to emit, or (nil, true) if the
// empty-commit policy pruned it — in which case the alias to its first
// parent has already been registered in c.Prune.
func (c *Context) ProcessCommit(commit *record.Commit) (*record.Commit, bool, error) {
	c.Marks.Observe(commit.Mark, commit.OriginalOID)
	if commit.OriginalOID != "" {
		c.Hex.Insert(commit.OriginalOID, commit.Mark)
	}

	totalParents := 0
	if commit.From != "" {
		totalParents++
	}
	totalParents += len(commit.Merge)
	isMerge := totalParents >= 2

	commit.Ref = c.RenameCommitRef(commit.Ref)
	commit.Message = c.RewriteMessage(commit.Message)

	filtered, err := c.FilterFileChanges(commit.Files)
	if err != nil {
		return nil, false, err
	}
	commit.Files = filtered

	if totalParents == 0 {
		// A root commit starts from an empty tree, so a delete in it
		// (e.g. of a path whose blob was dropped) removes nothing.
		kept := commit.Files[:0]
		for _, fc := range commit.Files {
			if fc.Kind != record.FileDelete {
				kept = append(kept, fc)
			}
		}
		commit.Files = kept
	}

	if len(commit.Files) == 0 && !isMerge {
		aliasTarget := 0
		if mark, ok := markRefToInt(commit.From); ok {
			aliasTarget = mark
		}
		c.Prune.Prune(commit.Mark, aliasTarget)
		c.Stats.CommitsPruned++
		return nil, true, nil
	}

	parents := c.FixupParents(commit.From, commit.Merge)
	commit.From = parents.From
	commit.Merge = parents.Merge

	return commit, false, nil
}
