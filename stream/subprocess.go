package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// ExporterOptions controls how the exporter subprocess is invoked, per
// spec.md §4.3's "Subprocess invocation contracts".
type ExporterOptions struct {
	RepoDir    string
	Refs       []string // repeatable ref selection; empty means all refs
	DateOrder  bool     // debug opt-in; default is topological order
	QuotePath  bool     // default off
}

// ImporterOptions controls how the importer subprocess is invoked.
type ImporterOptions struct {
	RepoDir        string
	ExportMarksTo  string // path under the results directory
}

// Subprocess pairs a running *exec.Cmd with a bounded buffer capturing its
// stderr tail for spec.md §7's "subprocess errors" report. The pipe the
// engine drives it through is returned separately by StartExporter/
// StartImporter.
type Subprocess struct {
	Cmd    *exec.Cmd
	stderr *stderrTail
}

const stderrTailCap = 64 * 1024

type stderrTail struct {
	buf bytes.Buffer
}

func (s *stderrTail) Write(p []byte) (int, error) {
	s.buf.Write(p)
	if s.buf.Len() > stderrTailCap {
		excess := s.buf.Len() - stderrTailCap
		s.buf.Next(excess)
	}
	return len(p), nil
}

// Tail returns the captured stderr tail.
func (s *Subprocess) Tail() string {
	if s.stderr == nil {
		return ""
	}
	return s.stderr.buf.String()
}

// Wait waits for the subprocess and wraps a non-zero exit in a
// spec.md §7 "subprocess error" with the captured stderr tail.
func (s *Subprocess) Wait() error {
	err := s.Cmd.Wait()
	if err != nil {
		return fmt.Errorf("subprocess %s failed: %w\nstderr:\n%s", s.Cmd.Path, err, s.Tail())
	}
	return nil
}

// StartExporter launches the VCS's fast-export equivalent with the
// behaviors spec.md §4.3 mandates always-on: show-original-ids,
// signed-tags stripped, tag-of-filtered-object rewritten, fake missing
// taggers, reference-excluded-parents, use-done-feature, UTF-8
// re-encoding on by default.
func StartExporter(logger *logrus.Logger, opts ExporterOptions) (*Subprocess, io.ReadCloser, error) {
	args := []string{"fast-export",
		"--show-original-ids",
		"--signed-tags=strip",
		"--tag-of-filtered-object=rewrite",
		"--fake-missing-tagger",
		"--reference-excluded-parents",
		"--use-done-feature",
		"--reencode=yes",
	}
	if opts.DateOrder {
		args = append(args, "--date-order")
	}
	if opts.QuotePath {
		args = append(args, "--quote-path")
	} else {
		args = append(args, "--no-quote-path")
	}
	if len(opts.Refs) > 0 {
		args = append(args, opts.Refs...)
	} else {
		args = append(args, "--all")
	}
	cmd := exec.Command("git", args...)
	cmd.Dir = opts.RepoDir
	tail := &stderrTail{}
	cmd.Stderr = tail
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stream: exporter stdout pipe: %w", err)
	}
	bufOut := bufio.NewReaderSize(stdout, 1<<20)
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("stream: start exporter: %w", err)
	}
	logger.Debugf("stream: started exporter: %v", cmd.Args)
	return &Subprocess{Cmd: cmd, stderr: tail}, io.NopCloser(bufOut), nil
}

// StartImporter launches the VCS's fast-import equivalent with the
// behaviors spec.md §4.3 mandates: force, quiet, permissive date parsing,
// case-sensitive tree handling, and export-marks under the results dir.
func StartImporter(logger *logrus.Logger, opts ImporterOptions) (*Subprocess, io.WriteCloser, error) {
	args := []string{"fast-import",
		"--force",
		"--quiet",
		"--date-format=raw-permissive",
		"--case-sensitive-tree",
	}
	if opts.ExportMarksTo != "" {
		args = append(args, "--export-marks="+opts.ExportMarksTo)
	}
	cmd := exec.Command("git", args...)
	cmd.Dir = opts.RepoDir
	tail := &stderrTail{}
	cmd.Stderr = tail
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stream: importer stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("stream: start importer: %w", err)
	}
	logger.Debugf("stream: started importer: %v", cmd.Args)
	return &Subprocess{Cmd: cmd, stderr: tail}, stdin, nil
}
