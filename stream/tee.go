package stream

import (
	"io"
	"os"

	"github.com/alitto/pond"
)

// DebugAppender is an io.WriteCloser that hands every Write off to a
// single-worker github.com/alitto/pond pool before returning, so that a
// slow disk can never stall the synchronous exporter<->importer pipe
// relay, per spec.md §5's "debug writes must not be allowed to deadlock"
// requirement. Close drains the pool and closes the backing file.
type DebugAppender struct {
	f    *os.File
	pool *pond.WorkerPool
}

// NewDebugAppender creates (truncating) the file at path and returns an
// appender backed by a one-worker pond pool.
func NewDebugAppender(path string) (*DebugAppender, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &DebugAppender{f: f, pool: pond.New(1, 4096, pond.MinWorkers(1))}, nil
}

// Write copies p (the caller's buffer may be reused immediately after
// Write returns) and schedules the append asynchronously.
func (d *DebugAppender) Write(p []byte) (int, error) {
	buf := append([]byte(nil), p...)
	d.pool.Submit(func() {
		d.f.Write(buf)
	})
	return len(p), nil
}

// Close drains pending writes and closes the file.
func (d *DebugAppender) Close() error {
	d.pool.StopAndWait()
	return d.f.Close()
}

// TeeWriter forks every Write to primary (synchronously — this is the
// live pipe to the importer and must observe backpressure) and, if debug
// is non-nil, to the async DebugAppender.
type TeeWriter struct {
	primary io.Writer
	debug   *DebugAppender
}

// NewTeeWriter wraps primary; debug may be nil to disable the capture.
func NewTeeWriter(primary io.Writer, debug *DebugAppender) *TeeWriter {
	return &TeeWriter{primary: primary, debug: debug}
}

// Write satisfies io.Writer.
func (t *TeeWriter) Write(p []byte) (int, error) {
	n, err := t.primary.Write(p)
	if err != nil {
		return n, err
	}
	if t.debug != nil {
		t.debug.Write(p)
	}
	return n, nil
}
