// Package record models one parsed fast-export stream record as a small,
// tagged-variant struct with an Emit contract, per spec.md §4.4/§9. Each
// type wraps the corresponding github.com/rcowham/go-libgitfastimport
// command so that decoding/encoding the wire form stays entirely inside
// that library; this package only carries the fields the rewrite engine
// needs to inspect or mutate.
package record

import (
	"time"

	libfastimport "github.com/rcowham/go-libgitfastimport"
)

// Kind tags which variant a Record holds.
type Kind int

const (
	KindBlob Kind = iota
	KindCommit
	KindTag
	KindReset
	KindProgress
	KindDone
)

// Identity is a lightweight name/email/time triple, mirroring the
// author/committer/tagger lines of the wire format.
type Identity struct {
	Name  string
	Email string
	Time  time.Time
}

// FileChangeKind distinguishes the file-change operations the rewrite
// engine understands; copy/rename are normalized to Modify/Delete pairs
// by Commit.AppendFileCopy/AppendFileRename as the stream is read
// (spec.md only requires M/D/deleteall fidelity).
type FileChangeKind int

const (
	FileModify FileChangeKind = iota
	FileDelete
	FileDeleteAll
)

// FileChange is one entry of a commit's file-change list.
type FileChange struct {
	Kind    FileChangeKind
	Path    string
	Mode    libfastimport.Mode
	DataRef string // mark (":N") or 40-hex id; empty for Delete/DeleteAll
}

// Blob is the in-memory form of a `blob` record (spec.md §3).
type Blob struct {
	Mark        int
	OriginalOID string
	Data        []byte
	Dropped     bool // true once elided by size/id-list policy
}

// Commit is the in-memory form of a `commit` record (spec.md §3).
type Commit struct {
	Mark        int
	Ref         string
	OriginalOID string
	Author      Identity
	Committer   Identity
	Message     string
	From        string   // mark reference, e.g. ":12"; empty for a root commit
	Merge       []string // mark references for additional parents
	Files       []FileChange
}

// Tag is the in-memory form of an annotated `tag` record (spec.md §3).
type Tag struct {
	Mark        int
	Ref         string // final ref, e.g. "refs/tags/v1.0"
	From        string // mark reference of the tagged object
	Tagger      Identity
	Message     string
	OriginalOID string
}

// Reset is the in-memory form of a `reset` record (spec.md §3).
type Reset struct {
	Ref  string
	From string // mark reference; empty clears the ref
}
