// Package engine wires C1-C8 into the single cooperative-thread
// orchestrator of spec.md §4.9 (C9): it owns the exporter/importer
// subprocess lifetimes, drives the parse/rewrite/emit loop, and performs
// ref finalization, choosing among dry-run/partial/sensitive/enforce-sanity
// modes.
package engine

import (
	"github.com/rcowham/gitfilterrs/rules"
)

// Options is the fully-resolved set of knobs the CLI layer (main.go)
// builds from flags and the optional .filter-repo-rs.toml defaults before
// calling Run. Every field except Sanity corresponds to an argument or
// flag named in spec.md §6.
type Options struct {
	RepoDir string
	Refs    []string // repeatable ref selection; empty means all refs

	PathSelector *rules.PathSelector
	PathRename   *rules.RenameTable
	BranchRename *rules.RenameTable
	TagRename    *rules.RenameTable

	MessageReplace *rules.ReplaceTable
	BlobReplace    *rules.ReplaceTable

	MaxBlobSize int64
	StripIDs    map[string]bool

	DryRun        bool
	Quiet         bool
	WriteReport   bool
	Backup        bool
	BackupPath    string
	Partial       bool
	Sensitive     bool
	NoFetch       bool
	Force         bool
	EnforceSanity bool
	Cleanup       bool

	// DebugCapture mirrors the unmodified exporter output and the final
	// importer input to fast-export.original/fast-export.filtered under
	// the results directory (spec.md §4.3).
	DebugCapture bool
	// DateOrder and QuotePath surface the exporter's debug toggles
	// (spec.md §6 "Debug overlay exposes low-level exporter toggles").
	DateOrder bool
	QuotePath bool
	// FEStreamOverride substitutes a literal fast-export stream file for
	// the exporter subprocess, for deterministic testing (spec.md §6).
	FEStreamOverride string

	// Sanity overrides the engine's built-in preflight check (a clean
	// worktree) with a caller-supplied one, e.g. the fuller fresh-clone
	// checks spec.md §1 places out of the core engine's scope.
	Sanity SanityChecker
}

// SanityChecker is the out-of-scope preflight collaborator (spec.md §1):
// fresh-clone and clean-worktree checks live outside the core engine.
// EnforceSanity only decides whether the orchestrator calls one.
type SanityChecker func(repoDir string) error
