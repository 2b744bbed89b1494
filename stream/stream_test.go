package stream

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	libfastimport "github.com/rcowham/go-libgitfastimport"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestDebugAppenderWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.bin")
	a, err := NewDebugAppender(path)
	require.NoError(t, err)

	n, err := a.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, a.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestTeeWriterForksToBothDestinations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tee.bin")
	a, err := NewDebugAppender(path)
	require.NoError(t, err)

	var primary bytes.Buffer
	tw := NewTeeWriter(&primary, a)
	n, err := tw.Write([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	require.NoError(t, a.Close())

	assert.Equal(t, "payload", primary.String())
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestTeeWriterWithNilDebugOnlyWritesPrimary(t *testing.T) {
	var primary bytes.Buffer
	tw := NewTeeWriter(&primary, nil)
	_, err := tw.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "x", primary.String())
}

func TestSourceAndSinkRoundTripCommit(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf, nil)
	require.NoError(t, sink.Backend.Do(libfastimport.CmdCommit{Mark: 1, Ref: "refs/heads/main"}))
	require.NoError(t, sink.Backend.Do(libfastimport.CmdCommitEnd{}))

	source := NewSource(&buf, nil)
	cmd, err := source.Frontend.ReadCmd()
	require.NoError(t, err)
	got, ok := cmd.(libfastimport.CmdCommit)
	require.True(t, ok)
	assert.Equal(t, "refs/heads/main", got.Ref)
}

func TestSubprocessWaitWrapsFailureWithStderrTail(t *testing.T) {
	cmd := exec.Command("sh", "-c", "echo boom 1>&2; exit 1")
	tail := &stderrTail{}
	cmd.Stderr = tail
	require.NoError(t, cmd.Start())
	s := &Subprocess{Cmd: cmd, stderr: tail}

	err := s.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, s.Tail(), "boom")
}

func TestStderrTailCapsAtBound(t *testing.T) {
	tail := &stderrTail{}
	big := bytes.Repeat([]byte("x"), stderrTailCap+100)
	tail.Write(big)
	assert.LessOrEqual(t, tail.buf.Len(), stderrTailCap)
}

func TestStartExporterProducesFastExportStream(t *testing.T) {
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a\n"), 0o644))
	run("add", "-A")
	run("commit", "-q", "-m", "initial")

	sub, stdout, err := StartExporter(testLogger(), ExporterOptions{RepoDir: dir})
	require.NoError(t, err)
	data, err := io.ReadAll(stdout)
	require.NoError(t, err)
	require.NoError(t, sub.Wait())

	assert.Contains(t, string(data), "commit refs/heads/main")
}
