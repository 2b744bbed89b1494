package report

import (
	"fmt"
	"io"
)

// Writer streams human-readable report lines to w, mirroring the
// teacher's journal.Journal: a thin struct wrapping an io.Writer with
// line-oriented WriteX methods, one per record kind — here, one per
// report section instead of one per Perforce journal table.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the report's title line.
func (rw *Writer) WriteHeader() error {
	_, err := fmt.Fprintln(rw.w, "filter-repo-rs report")
	return err
}

// WriteCounters renders every non-zero counter as "name: value".
func (rw *Writer) WriteCounters(c *Counters) error {
	lines := []struct {
		name  string
		value int
	}{
		{"paths excluded", c.PathsExcluded},
		{"paths sanitized for Windows", c.PathsSanitized},
		{"path collisions resolved", c.PathCollisionsResolved},
		{"blobs stripped by size", c.BlobsStrippedSize},
		{"blobs stripped by id", c.BlobsStrippedID},
		{"  of which binary", c.BlobsStrippedBinary},
		{"  of which text", c.BlobsStrippedText},
		{"blobs with content rewritten", c.BlobsContentRewritten},
		{"commit/tag messages rewritten", c.MessagesRewritten},
		{"short hashes rewritten", c.ShortHashesRewritten},
		{"short hashes left ambiguous", c.ShortHashesAmbiguous},
		{"commits pruned", c.CommitsPruned},
		{"merges collapsed to regular commits", c.MergesCollapsed},
		{"tags deduplicated", c.TagsDeduped},
		{"refs renamed", c.RefsRenamed},
		{"refs deleted", c.RefsDeleted},
	}
	for _, l := range lines {
		if l.value == 0 {
			continue
		}
		if _, err := fmt.Fprintf(rw.w, "%-40s %d\n", l.name+":", l.value); err != nil {
			return err
		}
	}
	return nil
}

// CommitMapWriter writes "commit-map" lines: "<old-oid> <new-oid>".
type CommitMapWriter struct {
	w io.Writer
}

// NewCommitMapWriter wraps w.
func NewCommitMapWriter(w io.Writer) *CommitMapWriter {
	return &CommitMapWriter{w: w}
}

// WriteEntry appends one mapping line.
func (m *CommitMapWriter) WriteEntry(oldOID, newOID string) error {
	_, err := fmt.Fprintf(m.w, "%s %s\n", oldOID, newOID)
	return err
}

// RefMapWriter writes "ref-map" lines:
// "<old-oid> <new-oid> <old-ref> <new-ref>".
type RefMapWriter struct {
	w io.Writer
}

// NewRefMapWriter wraps w.
func NewRefMapWriter(w io.Writer) *RefMapWriter {
	return &RefMapWriter{w: w}
}

// WriteEntry appends one ref-map line.
func (m *RefMapWriter) WriteEntry(oldOID, newOID, oldRef, newRef string) error {
	_, err := fmt.Fprintf(m.w, "%s %s %s %s\n", oldOID, newOID, oldRef, newRef)
	return err
}
