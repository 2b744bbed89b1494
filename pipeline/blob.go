package pipeline

import (
	"github.com/h2non/filetype"

	"github.com/rcowham/gitfilterrs/record"
)

// ProcessBlob applies the blob-size threshold and id-strip policy and any
// content replacement table (spec.md §3's blob lifecycle). It reports
// whether the blob should still be emitted; if false, the blob's mark is
// recorded in DroppedBlobs so that later M records referencing it are
// rewritten to D by ProcessCommit.
func (c *Context) ProcessBlob(b *record.Blob) bool {
	c.Marks.Observe(b.Mark, b.OriginalOID)

	strippedByID := c.StripIDs[b.OriginalOID]
	strippedBySize := c.MaxBlobSize > 0 && int64(len(b.Data)) > c.MaxBlobSize
	if strippedByID || strippedBySize {
		c.DroppedBlobs[b.Mark] = true
		b.Dropped = true
		if strippedBySize {
			c.Stats.BlobsStrippedSize++
		} else {
			c.Stats.BlobsStrippedID++
		}
		if isBinary(b.Data) {
			c.Stats.BlobsStrippedBinary++
		} else {
			c.Stats.BlobsStrippedText++
		}
		return false
	}

	if rewritten, changed := c.BlobReplace.Apply(b.Data); changed {
		b.Data = rewritten
		c.Stats.BlobsContentRewritten++
	}
	return true
}

// isBinary classifies content for the report counters using
// github.com/h2non/filetype, the same library the teacher uses to type
// archive content before writing it to the Perforce depot.
func isBinary(data []byte) bool {
	head := data
	if len(head) > 8192 {
		head = head[:8192]
	}
	kind, err := filetype.Match(head)
	if err == nil && kind != filetype.Unknown {
		return true
	}
	for _, b := range head {
		if b == 0 {
			return true
		}
	}
	return false
}
