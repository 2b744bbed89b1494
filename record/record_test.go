package record

import (
	"bytes"
	"testing"

	libfastimport "github.com/rcowham/go-libgitfastimport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/gitfilterrs/stream"
)

func TestBlobRoundTripsThroughCmdBlob(t *testing.T) {
	cmd := libfastimport.CmdBlob{Mark: 5, Data: "hello world"}
	b := FromCmdBlob(cmd)
	assert.Equal(t, 5, b.Mark)
	assert.Equal(t, []byte("hello world"), b.Data)

	back := b.ToCmdBlob()
	assert.Equal(t, 5, back.Mark)
	assert.Equal(t, "hello world", back.Data)
}

func TestCommitRoundTripsThroughCmdCommit(t *testing.T) {
	cmd := libfastimport.CmdCommit{
		Mark:      3,
		Ref:       "refs/heads/main",
		Author:    libfastimport.Person{Name: "A", Email: "a@example.com"},
		Committer: libfastimport.Person{Name: "A", Email: "a@example.com"},
		Msg:       "initial",
		Merge:     []string{":1", ":2"},
	}
	c := FromCmdCommit(cmd)
	assert.Equal(t, 3, c.Mark)
	assert.Equal(t, "refs/heads/main", c.Ref)
	assert.Equal(t, "initial", c.Message)
	assert.Equal(t, []string{":1", ":2"}, c.Merge)

	back := c.ToCmdCommit()
	assert.Equal(t, cmd.Mark, back.Mark)
	assert.Equal(t, cmd.Msg, back.Msg)
	assert.Equal(t, cmd.Merge, back.Merge)
}

func TestCommitMergeSliceIsCopiedNotAliased(t *testing.T) {
	src := []string{":1", ":2"}
	cmd := libfastimport.CmdCommit{Mark: 1, Merge: src}
	c := FromCmdCommit(cmd)
	src[0] = "clobbered"
	assert.Equal(t, ":1", c.Merge[0])
}

func TestAppendFileModify(t *testing.T) {
	c := &Commit{Mark: 1}
	c.AppendFileModify(libfastimport.FileModify{Path: "a.txt", Mode: 0o100644, DataRef: ":2"})
	require.Len(t, c.Files, 1)
	assert.Equal(t, FileModify, c.Files[0].Kind)
	assert.Equal(t, "a.txt", c.Files[0].Path)
	assert.Equal(t, ":2", c.Files[0].DataRef)
}

func TestAppendFileDelete(t *testing.T) {
	c := &Commit{Mark: 1}
	c.AppendFileDelete(libfastimport.FileDelete{Path: "a.txt"})
	require.Len(t, c.Files, 1)
	assert.Equal(t, FileDelete, c.Files[0].Kind)
}

func TestAppendFileCopyNormalizesToModify(t *testing.T) {
	c := &Commit{Mark: 1}
	c.AppendFileCopy(libfastimport.FileCopy{Src: "old.txt", Dst: "new.txt"}, ":4", 0o100644)
	require.Len(t, c.Files, 1)
	assert.Equal(t, FileModify, c.Files[0].Kind)
	assert.Equal(t, "new.txt", c.Files[0].Path)
	assert.Equal(t, ":4", c.Files[0].DataRef)
}

func TestAppendFileRenameEmitsDeleteThenModify(t *testing.T) {
	c := &Commit{Mark: 1}
	c.AppendFileRename(libfastimport.FileRename{Src: "old.txt", Dst: "new.txt"}, ":4", 0o100644)
	require.Len(t, c.Files, 2)
	assert.Equal(t, FileDelete, c.Files[0].Kind)
	assert.Equal(t, "old.txt", c.Files[0].Path)
	assert.Equal(t, FileModify, c.Files[1].Kind)
	assert.Equal(t, "new.txt", c.Files[1].Path)
}

func TestAppendDeleteAll(t *testing.T) {
	c := &Commit{Mark: 1}
	c.AppendDeleteAll()
	require.Len(t, c.Files, 1)
	assert.Equal(t, FileDeleteAll, c.Files[0].Kind)
}

func TestCommitEmitWritesHeaderFilesAndEnd(t *testing.T) {
	c := &Commit{
		Mark:      1,
		Ref:       "refs/heads/main",
		Author:    Identity{Name: "A", Email: "a@example.com"},
		Committer: Identity{Name: "A", Email: "a@example.com"},
		Message:   "msg",
	}
	c.AppendFileModify(libfastimport.FileModify{Path: "a.txt", Mode: 0o100644, DataRef: ":1"})
	c.AppendFileDelete(libfastimport.FileDelete{Path: "old.txt"})
	c.AppendDeleteAll()

	var buf bytes.Buffer
	sink := stream.NewSink(&buf, nil)
	require.NoError(t, c.Emit(sink.Backend))

	out := buf.String()
	assert.Contains(t, out, "commit refs/heads/main")
	assert.Contains(t, out, "M 100644 :1 a.txt")
	assert.Contains(t, out, "D old.txt")
	assert.Contains(t, out, "deleteall")
}

func TestTagRoundTripsThroughCmdTag(t *testing.T) {
	cmd := libfastimport.CmdTag{
		RefName: "v1.0",
		From:    ":5",
		Tagger:  libfastimport.Person{Name: "A", Email: "a@example.com"},
		Msg:     "release",
	}
	tag := FromCmdTag(cmd)
	assert.Equal(t, "v1.0", tag.Ref)
	assert.Equal(t, "release", tag.Message)

	back := tag.ToCmdTag()
	assert.Equal(t, cmd.RefName, back.RefName)
	assert.Equal(t, cmd.Msg, back.Msg)
}

func TestTagEmit(t *testing.T) {
	tag := &Tag{Ref: "v1.0", From: ":5", Tagger: Identity{Name: "A", Email: "a@example.com"}, Message: "release"}
	var buf bytes.Buffer
	sink := stream.NewSink(&buf, nil)
	require.NoError(t, tag.Emit(sink.Backend))
	assert.Contains(t, buf.String(), "tag v1.0")
}

func TestResetRoundTripAndEmit(t *testing.T) {
	cmd := libfastimport.CmdReset{RefName: "refs/heads/main", From: ":9"}
	r := FromCmdReset(cmd)
	assert.Equal(t, "refs/heads/main", r.Ref)
	assert.Equal(t, ":9", r.From)

	var buf bytes.Buffer
	sink := stream.NewSink(&buf, nil)
	require.NoError(t, r.Emit(sink.Backend))
	assert.Contains(t, buf.String(), "reset refs/heads/main")
}
