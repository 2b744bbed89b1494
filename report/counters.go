// Package report accumulates the action counters surfaced in
// "report.txt" (spec.md §6) and writes the audit artifacts using the
// line-oriented writer idiom of the teacher's journal.Journal type,
// repurposed from Perforce journal records to plain counters and
// mapping lines.
package report

// Counters tallies the rewrite's effects for the human-readable report.
type Counters struct {
	PathsExcluded       int
	BlobsStrippedSize   int
	BlobsStrippedID     int
	BlobsStrippedBinary int // of the above, how many were binary (h2non/filetype)
	BlobsStrippedText   int
	BlobsContentRewritten int
	MessagesRewritten   int
	ShortHashesRewritten int
	ShortHashesAmbiguous int
	CommitsPruned       int
	MergesCollapsed     int
	TagsDeduped         int
	RefsRenamed         int
	RefsDeleted         int
	PathsSanitized      int
	PathCollisionsResolved int
}

// NewCounters returns a zeroed Counters.
func NewCounters() *Counters {
	return &Counters{}
}
