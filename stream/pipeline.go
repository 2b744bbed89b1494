package stream

import (
	"io"

	libfastimport "github.com/rcowham/go-libgitfastimport"
)

// Source wraps the exporter's output as a go-libgitfastimport Frontend,
// optionally teeing every byte read to a debug capture (the
// "fast-export.original" artifact of spec.md §6), exactly mirroring the
// teacher's `libfastimport.NewFrontend(inbuf, nil, nil)` usage.
type Source struct {
	Frontend *libfastimport.Frontend
	debug    *DebugAppender
}

// NewSource builds a Source over r. If debug is non-nil every byte read
// from r is also appended to it.
func NewSource(r io.Reader, debug *DebugAppender) *Source {
	reader := r
	if debug != nil {
		reader = io.TeeReader(r, debug)
	}
	return &Source{Frontend: libfastimport.NewFrontend(reader, nil, nil), debug: debug}
}

// Close flushes the debug capture, if any.
func (s *Source) Close() error {
	if s.debug != nil {
		return s.debug.Close()
	}
	return nil
}

// Sink wraps the importer's input as a go-libgitfastimport Backend,
// optionally teeing every byte written to a debug capture (the
// "fast-export.filtered" artifact of spec.md §6).
type Sink struct {
	Backend *libfastimport.Backend
	debug   *DebugAppender
}

// NewSink builds a Sink over w. If debug is non-nil every byte written to
// w is also appended to it.
func NewSink(w io.Writer, debug *DebugAppender) *Sink {
	writer := w
	if debug != nil {
		writer = NewTeeWriter(w, debug)
	}
	return &Sink{Backend: libfastimport.NewBackend(writer, nil, nil), debug: debug}
}

// Close flushes the debug capture, if any.
func (s *Sink) Close() error {
	if s.debug != nil {
		return s.debug.Close()
	}
	return nil
}
