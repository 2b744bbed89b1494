package engine

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	libfastimport "github.com/rcowham/go-libgitfastimport"
	"github.com/sirupsen/logrus"

	"github.com/rcowham/gitfilterrs/finalize"
	"github.com/rcowham/gitfilterrs/idstate"
	"github.com/rcowham/gitfilterrs/pipeline"
	"github.com/rcowham/gitfilterrs/record"
	"github.com/rcowham/gitfilterrs/report"
	"github.com/rcowham/gitfilterrs/stream"
)

func toStaging(ref string) string {
	return strings.Replace(ref, "refs/", finalize.StagingPrefix, 1)
}

// Result summarizes one completed run for the CLI layer to report.
type Result struct {
	ResultsDir string
	Stats      *report.Counters
	BackupPath string
}

// Run executes one full rewrite per spec.md §2-§4.9 and returns a
// *RunError (via errors.go's helpers) on any failure so main.go can map
// it to an exit code.
func Run(logger *logrus.Logger, opts *Options) (*Result, error) {
	if opts.RepoDir == "" {
		return nil, userError("engine: repo dir is required")
	}
	rd, err := resultsDir(opts.RepoDir)
	if err != nil {
		return nil, err
	}

	if opts.EnforceSanity {
		sanity := opts.Sanity
		if sanity == nil {
			sanity = defaultSanityChecker
		}
		if err := sanity(opts.RepoDir); err != nil {
			if !opts.Force {
				return nil, preflightError("engine: preflight sanity check failed: %v", err)
			}
			logger.Warnf("engine: preflight sanity check failed, continuing because --force: %v", err)
		}
	}

	var backupPath string
	if opts.Backup {
		backupPath, err = createBackupBundle(opts.RepoDir, opts.BackupPath)
		if err != nil {
			return nil, err
		}
		logger.Infof("engine: wrote backup bundle %s", backupPath)
	}

	if opts.Sensitive && !opts.NoFetch {
		if err := fetchAllRefs(opts.RepoDir); err != nil {
			return nil, err
		}
	}

	ctx := pipeline.NewContext(logger)
	if opts.PathSelector != nil {
		ctx.PathSelector = opts.PathSelector
	}
	if opts.PathRename != nil {
		ctx.PathRename = opts.PathRename
	}
	if opts.BranchRename != nil {
		ctx.BranchRename = opts.BranchRename
	}
	if opts.TagRename != nil {
		ctx.TagRename = opts.TagRename
	}
	if opts.MessageReplace != nil {
		ctx.MessageReplace = opts.MessageReplace
	}
	if opts.BlobReplace != nil {
		ctx.BlobReplace = opts.BlobReplace
	}
	ctx.MaxBlobSize = opts.MaxBlobSize
	if opts.StripIDs != nil {
		ctx.StripIDs = opts.StripIDs
	}

	var debugOrig, debugFiltered *stream.DebugAppender
	if opts.DebugCapture {
		debugOrig, err = stream.NewDebugAppender(filepath.Join(rd, "fast-export.original"))
		if err != nil {
			return nil, internalError("engine: open debug capture: %v", err)
		}
		debugFiltered, err = stream.NewDebugAppender(filepath.Join(rd, "fast-export.filtered"))
		if err != nil {
			return nil, internalError("engine: open debug capture: %v", err)
		}
	}

	var expSub *stream.Subprocess
	var stdout io.ReadCloser
	var overrideFile *os.File
	if opts.FEStreamOverride != "" {
		overrideFile, err = os.Open(opts.FEStreamOverride)
		if err != nil {
			return nil, userError("engine: open fe_stream_override: %v", err)
		}
		stdout = overrideFile
	} else {
		expSub, stdout, err = stream.StartExporter(logger, stream.ExporterOptions{
			RepoDir:   opts.RepoDir,
			Refs:      opts.Refs,
			DateOrder: opts.DateOrder,
			QuotePath: opts.QuotePath,
		})
		if err != nil {
			return nil, subprocessError("%v", err)
		}
	}

	targetMarksPath := filepath.Join(rd, "target-marks")
	impSub, stdin, err := stream.StartImporter(logger, stream.ImporterOptions{
		RepoDir:       opts.RepoDir,
		ExportMarksTo: targetMarksPath,
	})
	if err != nil {
		return nil, subprocessError("%v", err)
	}

	source := stream.NewSource(stdout, debugOrig)
	sink := stream.NewSink(stdin, debugFiltered)
	tagPipeline := pipeline.NewTagPipeline(ctx)

	refOldOID := make(map[string]string)
	var commitMarks []int
	priorHeadSymbolic, _ := resolveSymbolicRef(opts.RepoDir, "HEAD")

	runErr := driveStream(ctx, tagPipeline, source, sink, refOldOID, &commitMarks)
	closeErr := closeStreams(source, sink, stdin, expSub, impSub, overrideFile)
	if runErr != nil {
		return nil, runErr
	}
	if closeErr != nil {
		return nil, closeErr
	}

	marksFile, err := os.Open(targetMarksPath)
	if err != nil {
		return nil, internalError("engine: open target-marks: %v", err)
	}
	loadErr := ctx.Marks.LoadExportedMarks(marksFile)
	marksFile.Close()
	if loadErr != nil {
		return nil, internalError("engine: parse target-marks: %v", loadErr)
	}

	if ctx.Stats.ShortHashesRewritten > 0 {
		if err := finalize.RewriteShortHashes(logger, opts.RepoDir, ctx.Marks, rd); err != nil {
			return nil, internalError("engine: short-hash rewrite pass: %v", err)
		}
	}

	fin := &finalize.Finalizer{
		RepoDir:       opts.RepoDir,
		Logger:        logger,
		Marks:         ctx.Marks,
		BranchRename:  ctx.BranchRename,
		TagRename:     ctx.TagRename,
		StagingPrefix: finalize.StagingPrefix,
	}
	plan, err := fin.ComputeRefPlan(refOldOID)
	if err != nil {
		return nil, internalError("engine: compute ref plan: %v", err)
	}
	ctx.Stats.RefsRenamed, ctx.Stats.RefsDeleted = countRefChanges(plan)

	if err := finalize.WriteMaps(ctx.Marks, ctx.Prune.IsPruned, commitMarks,
		filepath.Join(rd, "commit-map"), filepath.Join(rd, "ref-map"), plan); err != nil {
		return nil, internalError("engine: write audit maps: %v", err)
	}
	if opts.WriteReport && !opts.Quiet {
		if err := writeReport(rd, ctx.Stats); err != nil {
			return nil, internalError("engine: %v", err)
		}
	}

	if opts.DryRun {
		if err := fin.RemoveStagingRefs(plan); err != nil {
			logger.Warnf("engine: dry-run staging cleanup: %v", err)
		}
		return &Result{ResultsDir: rd, Stats: ctx.Stats, BackupPath: backupPath}, nil
	}

	if err := fin.ApplyRefUpdates(plan); err != nil {
		return nil, internalError("engine: %v", err)
	}
	if priorHeadSymbolic != "" {
		if _, err := fin.RepositionHead(priorHeadSymbolic, plan); err != nil {
			logger.Warnf("engine: reposition HEAD: %v", err)
		}
	}

	if !opts.Partial && !opts.Sensitive {
		if err := fin.RemoveOrigin(); err != nil {
			logger.Warnf("engine: remove origin: %v", err)
		}
	}

	if opts.Cleanup && !opts.Partial {
		if err := runCleanup(opts.RepoDir); err != nil {
			logger.Warnf("engine: cleanup: %v", err)
		}
	}

	return &Result{ResultsDir: rd, Stats: ctx.Stats, BackupPath: backupPath}, nil
}

// treeState tracks each currently-live path's data reference so that
// FileCopy/FileRename records (which name only a source path, not its
// content) can be normalized into the Modify/Delete pairs record.Commit
// understands. It is a single run-wide map rather than one per branch:
// spec.md's filtering semantics only need a plausible content reference
// for the copy/rename source, not exact per-branch tree simulation.
type treeState struct {
	paths map[string]record.FileChange
}

func newTreeState() *treeState {
	return &treeState{paths: make(map[string]record.FileChange)}
}

func (s *treeState) apply(fc record.FileChange) {
	switch fc.Kind {
	case record.FileModify:
		s.paths[fc.Path] = fc
	case record.FileDelete:
		delete(s.paths, fc.Path)
	case record.FileDeleteAll:
		s.paths = make(map[string]record.FileChange)
	}
}

func (s *treeState) lookup(path string) (string, libfastimport.Mode) {
	if fc, ok := s.paths[path]; ok {
		return fc.DataRef, fc.Mode
	}
	return "", 0
}

// driveStream runs the single cooperative read/rewrite/write loop of
// spec.md §5: every blob, commit and branch reset is consumed in order,
// transformed, and forwarded; tags and lightweight-tag resets are buffered
// and flushed after the last record has been read. Progress, `done` and
// any other record kind are dropped.
func driveStream(ctx *pipeline.Context, tagPipeline *pipeline.TagPipeline, source *stream.Source, sink *stream.Sink, refOldOID map[string]string, commitMarks *[]int) error {
	var currCommit *record.Commit
	var commitOrigRef string
	var commitOrigOID string
	tree := newTreeState()

	flushCommit := func() error {
		if currCommit == nil {
			return nil
		}
		*commitMarks = append(*commitMarks, currCommit.Mark)
		if commitOrigOID != "" {
			refOldOID[commitOrigRef] = commitOrigOID
		}
		for _, fc := range currCommit.Files {
			tree.apply(fc)
		}
		rewritten, pruned, err := ctx.ProcessCommit(currCommit)
		if err != nil {
			return internalError("engine: %v", err)
		}
		if pruned {
			currCommit = nil
			return nil
		}
		rewritten.Ref = toStaging(rewritten.Ref)
		if err := rewritten.Emit(sink.Backend); err != nil {
			return subprocessError("engine: emit commit: %v", err)
		}
		currCommit = nil
		return nil
	}

	for {
		cmd, err := source.Frontend.ReadCmd()
		if err != nil {
			if err != io.EOF {
				return subprocessError("engine: read stream: %v", err)
			}
			break
		}
		switch c := cmd.(type) {
		case libfastimport.CmdBlob:
			blob := record.FromCmdBlob(c)
			if ctx.ProcessBlob(blob) {
				if err := sink.Backend.Do(blob.ToCmdBlob()); err != nil {
					return subprocessError("engine: emit blob: %v", err)
				}
			}

		case libfastimport.CmdReset:
			if err := flushCommit(); err != nil {
				return err
			}
			reset := record.FromCmdReset(c)
			if tagPipeline.HandleReset(reset) {
				continue
			}
			origRef := reset.Ref
			if mark, ok := markRefToInt(reset.From); ok {
				if info := ctx.Marks.Get(mark); info != nil && info.OriginalOID != "" {
					refOldOID[origRef] = info.OriginalOID
				}
			} else if len(reset.From) == 40 {
				refOldOID[origRef] = reset.From
			}
			reset.Ref = ctx.BranchRename.ApplyOrSame(reset.Ref)
			reset.Ref = toStaging(reset.Ref)
			if err := reset.Emit(sink.Backend); err != nil {
				return subprocessError("engine: emit reset: %v", err)
			}

		case libfastimport.CmdCommit:
			if err := flushCommit(); err != nil {
				return err
			}
			commit := record.FromCmdCommit(c)
			commitOrigRef = commit.Ref
			commitOrigOID = commit.OriginalOID
			currCommit = commit

		case libfastimport.FileModify:
			currCommit.AppendFileModify(c)
		case libfastimport.FileDelete:
			currCommit.AppendFileDelete(c)
		case libfastimport.FileCopy:
			srcRef, srcMode := tree.lookup(c.Src.String())
			currCommit.AppendFileCopy(c, srcRef, srcMode)
		case libfastimport.FileRename:
			srcRef, srcMode := tree.lookup(c.Src.String())
			tree.apply(record.FileChange{Kind: record.FileDelete, Path: c.Src.String()})
			currCommit.AppendFileRename(c, srcRef, srcMode)
		case libfastimport.FileDeleteAll:
			currCommit.AppendDeleteAll()

		case libfastimport.CmdCommitEnd:
			if err := flushCommit(); err != nil {
				return err
			}

		case libfastimport.CmdTag:
			if err := flushCommit(); err != nil {
				return err
			}
			tag := record.FromCmdTag(c)
			refOldOID[tag.Ref] = tag.OriginalOID
			tagPipeline.HandleTag(tag)

		default:
			// Progress and any other record kind the stream may carry
			// (e.g. the trailing `done` marker) needs no rewriting and
			// is not forwarded; fast-import is terminated by closing its
			// stdin once the loop exits, matching the teacher's importer
			// driver.
		}
	}

	if err := flushCommit(); err != nil {
		return err
	}
	tagPipeline.StageRefs(toStaging)
	return tagPipeline.Flush(sink.Backend)
}

func closeStreams(source *stream.Source, sink *stream.Sink, stdin io.WriteCloser, expSub, impSub *stream.Subprocess, overrideFile *os.File) error {
	if err := source.Close(); err != nil {
		return internalError("engine: close debug capture: %v", err)
	}
	if err := sink.Close(); err != nil {
		return internalError("engine: close debug capture: %v", err)
	}
	if err := stdin.Close(); err != nil {
		return subprocessError("engine: close importer stdin: %v", err)
	}
	if overrideFile != nil {
		overrideFile.Close()
	}
	if expSub != nil {
		if err := expSub.Wait(); err != nil {
			return subprocessError("%v", err)
		}
	}
	if impSub != nil {
		if err := impSub.Wait(); err != nil {
			return subprocessError("%v", err)
		}
	}
	return nil
}

func writeReport(rd string, stats *report.Counters) error {
	rp, err := os.Create(filepath.Join(rd, "report.txt"))
	if err != nil {
		return err
	}
	defer rp.Close()
	w := report.NewWriter(rp)
	if err := w.WriteHeader(); err != nil {
		return err
	}
	return w.WriteCounters(stats)
}

func countRefChanges(plan []finalize.RefEntry) (renamed, deleted int) {
	for _, e := range plan {
		if e.NewOID == idstate.ZeroOID {
			deleted++
		} else if e.Delete {
			renamed++
		}
	}
	return renamed, deleted
}

func markRefToInt(ref string) (int, bool) {
	if ref == "" || !strings.HasPrefix(ref, ":") {
		return 0, false
	}
	n := 0
	for _, c := range ref[1:] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
