package record

import (
	"fmt"

	libfastimport "github.com/rcowham/go-libgitfastimport"
)

func identityFrom(p libfastimport.Person) Identity {
	return Identity{Name: p.Name, Email: p.Email, Time: p.Time}
}

func identityTo(id Identity) libfastimport.Person {
	return libfastimport.Person{Name: id.Name, Email: id.Email, Time: id.Time}
}

// FromCmdBlob converts a parsed CmdBlob into a Blob.
func FromCmdBlob(b libfastimport.CmdBlob) *Blob {
	return &Blob{Mark: b.Mark, OriginalOID: b.OriginalOID, Data: []byte(b.Data)}
}

// ToCmdBlob converts a Blob back into a CmdBlob ready for backend.Do.
func (b *Blob) ToCmdBlob() libfastimport.CmdBlob {
	return libfastimport.CmdBlob{Mark: b.Mark, OriginalOID: b.OriginalOID, Data: string(b.Data)}
}

// FromCmdCommit converts a parsed CmdCommit (the header; file-changes are
// attached separately as FileModify/FileDelete/... records arrive) into a
// Commit.
func FromCmdCommit(c libfastimport.CmdCommit) *Commit {
	merge := make([]string, len(c.Merge))
	copy(merge, c.Merge)
	return &Commit{
		Mark:        c.Mark,
		Ref:         c.Ref,
		OriginalOID: c.OriginalOID,
		Author:      identityFrom(c.Author),
		Committer:   identityFrom(c.Committer),
		Message:     c.Msg,
		From:        c.From,
		Merge:       merge,
	}
}

// ToCmdCommit converts a Commit's header back into a CmdCommit; the file
// changes are emitted as separate Do() calls by the caller.
func (c *Commit) ToCmdCommit() libfastimport.CmdCommit {
	return libfastimport.CmdCommit{
		Mark:        c.Mark,
		Ref:         c.Ref,
		OriginalOID: c.OriginalOID,
		Author:      identityTo(c.Author),
		Committer:   identityTo(c.Committer),
		Msg:         c.Message,
		From:        c.From,
		Merge:       c.Merge,
	}
}

// AppendFileModify records a parsed FileModify against the commit.
func (c *Commit) AppendFileModify(f libfastimport.FileModify) {
	c.Files = append(c.Files, FileChange{
		Kind: FileModify, Path: f.Path.String(), Mode: f.Mode, DataRef: f.DataRef,
	})
}

// AppendFileDelete records a parsed FileDelete against the commit.
func (c *Commit) AppendFileDelete(f libfastimport.FileDelete) {
	c.Files = append(c.Files, FileChange{Kind: FileDelete, Path: f.Path.String()})
}

// AppendFileCopy normalizes a parsed FileCopy into a Modify of Dst carrying
// the same content reference as Src held at the time of the copy.
// sourceDataRef is resolved by the caller from its tree-state tracking.
func (c *Commit) AppendFileCopy(f libfastimport.FileCopy, sourceDataRef string, mode libfastimport.Mode) {
	c.Files = append(c.Files, FileChange{
		Kind: FileModify, Path: f.Dst.String(), Mode: mode, DataRef: sourceDataRef,
	})
}

// AppendFileRename normalizes a parsed FileRename into a Modify of Dst plus
// a Delete of Src.
func (c *Commit) AppendFileRename(f libfastimport.FileRename, sourceDataRef string, mode libfastimport.Mode) {
	c.Files = append(c.Files,
		FileChange{Kind: FileDelete, Path: f.Src.String()},
		FileChange{Kind: FileModify, Path: f.Dst.String(), Mode: mode, DataRef: sourceDataRef},
	)
}

// AppendDeleteAll records a `deleteall` directive.
func (c *Commit) AppendDeleteAll() {
	c.Files = append(c.Files, FileChange{Kind: FileDeleteAll})
}

// Emit writes the commit header and its file changes to backend in wire
// order: commit header, then each file-change command, matching
// go-libgitfastimport's Backend.Do contract used throughout the teacher's
// gitfilter tool.
func (c *Commit) Emit(backend *libfastimport.Backend) error {
	if err := backend.Do(c.ToCmdCommit()); err != nil {
		return fmt.Errorf("record: emit commit %d: %w", c.Mark, err)
	}
	for _, fc := range c.Files {
		var err error
		switch fc.Kind {
		case FileModify:
			err = backend.Do(libfastimport.FileModify{
				Path: libfastimport.Path(fc.Path), Mode: fc.Mode, DataRef: fc.DataRef,
			})
		case FileDelete:
			err = backend.Do(libfastimport.FileDelete{Path: libfastimport.Path(fc.Path)})
		case FileDeleteAll:
			err = backend.Do(libfastimport.FileDeleteAll{})
		}
		if err != nil {
			return fmt.Errorf("record: emit file change %q in commit %d: %w", fc.Path, c.Mark, err)
		}
	}
	if err := backend.Do(libfastimport.CmdCommitEnd{}); err != nil {
		return fmt.Errorf("record: emit commit-end %d: %w", c.Mark, err)
	}
	return nil
}

// FromCmdTag converts a parsed CmdTag into a Tag.
func FromCmdTag(t libfastimport.CmdTag) *Tag {
	return &Tag{
		Ref:         t.RefName,
		From:        t.From,
		Tagger:      identityFrom(t.Tagger),
		Message:     t.Msg,
		OriginalOID: t.OriginalOID,
	}
}

// ToCmdTag converts a Tag back into a CmdTag.
func (t *Tag) ToCmdTag() libfastimport.CmdTag {
	return libfastimport.CmdTag{
		RefName:     t.Ref,
		From:        t.From,
		Tagger:      identityTo(t.Tagger),
		Msg:         t.Message,
		OriginalOID: t.OriginalOID,
	}
}

// Emit writes the tag to backend.
func (t *Tag) Emit(backend *libfastimport.Backend) error {
	if err := backend.Do(t.ToCmdTag()); err != nil {
		return fmt.Errorf("record: emit tag %s: %w", t.Ref, err)
	}
	return nil
}

// FromCmdReset converts a parsed CmdReset into a Reset.
func FromCmdReset(r libfastimport.CmdReset) *Reset {
	return &Reset{Ref: r.RefName, From: r.From}
}

// Emit writes the reset to backend.
func (r *Reset) Emit(backend *libfastimport.Backend) error {
	if err := backend.Do(libfastimport.CmdReset{RefName: r.Ref, From: r.From}); err != nil {
		return fmt.Errorf("record: emit reset %s: %w", r.Ref, err)
	}
	return nil
}
