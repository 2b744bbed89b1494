// Package pipeline implements the per-commit and per-tag rewrite steps of
// spec.md §4.6/§4.7 (C6 and C7). All cross-record state (mark table,
// prune set, rename/replace tables) is passed in explicitly via Context
// rather than held as package globals, per spec.md §9.
package pipeline

import (
	"github.com/sirupsen/logrus"

	"github.com/rcowham/gitfilterrs/idstate"
	"github.com/rcowham/gitfilterrs/pathutil"
	"github.com/rcowham/gitfilterrs/report"
	"github.com/rcowham/gitfilterrs/rules"
)

// Context bundles everything the commit and tag pipelines need. It is
// constructed once per run by the orchestrator and threaded through every
// pipeline call.
type Context struct {
	Marks  *idstate.MarkTable
	Prune  *idstate.PruneSet
	Hex    *idstate.HexTrie
	Logger *logrus.Logger
	Stats  *report.Counters

	PathSelector   *rules.PathSelector
	PathRename     *rules.RenameTable
	BranchRename   *rules.RenameTable
	TagRename      *rules.RenameTable
	MessageReplace *rules.ReplaceTable
	BlobReplace    *rules.ReplaceTable

	MaxBlobSize int64           // 0 disables size stripping
	StripIDs    map[string]bool // 40-hex ids to strip regardless of size

	// DroppedBlobs is the set of marks whose blob was elided (oversize or
	// id-listed); later M records referencing one of these marks become D.
	DroppedBlobs map[int]bool

	SanitizeWindowsPaths bool // always true per spec.md §4.1, kept configurable for tests
}

// NewContext returns a Context with empty rule tables and sanitize-on.
func NewContext(logger *logrus.Logger) *Context {
	return &Context{
		Marks:                idstate.NewMarkTable(),
		Prune:                idstate.NewPruneSet(),
		Hex:                  idstate.NewHexTrie(),
		Logger:               logger,
		Stats:                report.NewCounters(),
		PathSelector:         &rules.PathSelector{},
		PathRename:           &rules.RenameTable{},
		BranchRename:         &rules.RenameTable{},
		TagRename:            &rules.RenameTable{},
		MessageReplace:       &rules.ReplaceTable{},
		BlobReplace:          &rules.ReplaceTable{},
		DroppedBlobs:         make(map[int]bool),
		StripIDs:             make(map[string]bool),
		SanitizeWindowsPaths: true,
	}
}

func (c *Context) sanitizePath(path string) string {
	if !c.SanitizeWindowsPaths {
		return path
	}
	sanitized := pathutil.SanitizeWindows(path)
	if sanitized != path {
		c.Stats.PathsSanitized++
		c.Logger.Warnf("pipeline: sanitized path %q -> %q", path, sanitized)
	}
	return sanitized
}
