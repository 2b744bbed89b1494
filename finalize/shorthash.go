package finalize

import (
	"fmt"
	"io"
	"path/filepath"

	libfastimport "github.com/rcowham/go-libgitfastimport"
	"github.com/sirupsen/logrus"

	"github.com/rcowham/gitfilterrs/idstate"
	"github.com/rcowham/gitfilterrs/stream"
)

// RewriteShortHashes implements the deferred half of spec.md §4.6 step 2's
// short-hash rewrite: pipeline.Context.rewriteShortHashes cannot resolve a
// placeholder to a real oid prefix while the stream is still in flight,
// because the mark -> new-oid table is only populated once the importer
// that wrote those objects has exited (spec.md's C5). This runs a second,
// narrowly-scoped fast-export/fast-import round over the already-rewritten
// repository, substituting every idstate.FormatPlaceholder token in commit
// and tag messages with the now-known oid prefix and leaving everything
// else byte-for-byte unchanged.
//
// On return, marks has every pass-one commit mark's NewOID updated to the
// (possibly different, since rewriting a message changes a commit's oid)
// final value.
func RewriteShortHashes(logger *logrus.Logger, repoDir string, marks *idstate.MarkTable, resultsDir string) error {
	reverseByOID := make(map[string]int)
	for _, mark := range marks.AllMarks() {
		info := marks.Get(mark)
		if info != nil && info.NewOID != "" {
			reverseByOID[info.NewOID] = mark
		}
	}

	// Only the staging namespace the main pass just wrote carries the
	// rewritten (placeholder-bearing) history; the repository's real refs
	// are untouched at this point (the finalizer moves them later), so
	// exporting --all here would re-export the pre-rewrite history too.
	expSub, stdout, err := stream.StartExporter(logger, stream.ExporterOptions{
		RepoDir: repoDir,
		Refs:    []string{"--glob=" + StagingPrefix + "*"},
	})
	if err != nil {
		return fmt.Errorf("finalize: short-hash pass: %w", err)
	}
	exportMarksPath := filepath.Join(resultsDir, "shorthash-marks")
	impSub, stdin, err := stream.StartImporter(logger, stream.ImporterOptions{RepoDir: repoDir, ExportMarksTo: exportMarksPath})
	if err != nil {
		return fmt.Errorf("finalize: short-hash pass: %w", err)
	}

	source := stream.NewSource(stdout, nil)
	sink := stream.NewSink(stdin, nil)

	pass2Marks := idstate.NewMarkTable()
	correlate := make(map[int]int) // pass-2 mark -> pass-1 mark

	for {
		cmd, err := source.Frontend.ReadCmd()
		if err != nil {
			if err != io.EOF {
				return fmt.Errorf("finalize: short-hash pass: read: %w", err)
			}
			break
		}
		switch c := cmd.(type) {
		case libfastimport.CmdCommit:
			pass2Marks.Observe(c.Mark, c.OriginalOID)
			if pass1Mark, ok := reverseByOID[c.OriginalOID]; ok {
				correlate[c.Mark] = pass1Mark
			}
			c.Msg = substitutePlaceholders(c.Msg, marks)
			if err := sink.Backend.Do(c); err != nil {
				return fmt.Errorf("finalize: short-hash pass: emit commit: %w", err)
			}
		case libfastimport.CmdTag:
			c.Msg = substitutePlaceholders(c.Msg, marks)
			if err := sink.Backend.Do(c); err != nil {
				return fmt.Errorf("finalize: short-hash pass: emit tag: %w", err)
			}
		default:
			if err := sink.Backend.Do(cmd); err != nil {
				return fmt.Errorf("finalize: short-hash pass: emit: %w", err)
			}
		}
	}

	if err := source.Close(); err != nil {
		return err
	}
	if err := sink.Close(); err != nil {
		return err
	}
	if err := stdin.Close(); err != nil {
		return fmt.Errorf("finalize: short-hash pass: close importer stdin: %w", err)
	}
	if err := expSub.Wait(); err != nil {
		return err
	}
	if err := impSub.Wait(); err != nil {
		return err
	}

	marksFile, err := openExportedMarks(exportMarksPath)
	if err != nil {
		return err
	}
	defer marksFile.Close()
	if err := pass2Marks.LoadExportedMarks(marksFile); err != nil {
		return fmt.Errorf("finalize: short-hash pass: load marks: %w", err)
	}

	for pass2Mark, pass1Mark := range correlate {
		info2 := pass2Marks.Get(pass2Mark)
		if info2 == nil || info2.NewOID == "" {
			continue
		}
		if info1 := marks.Get(pass1Mark); info1 != nil {
			info1.NewOID = info2.NewOID
		}
	}
	return nil
}

// substitutePlaceholders replaces every idstate.FormatPlaceholder token in
// msg with the now-resolved new-oid prefix for its mark. A placeholder
// whose mark has no new oid (e.g. its commit was pruned) falls back to the
// mark's original-oid prefix, leaving the text as it read in the source
// history rather than emitting raw control bytes. A placeholder whose
// mark is not in marks at all is replaced by the empty string.
func substitutePlaceholders(msg string, marks *idstate.MarkTable) string {
	return idstate.PlaceholderPattern.ReplaceAllStringFunc(msg, func(token string) string {
		groups := idstate.PlaceholderPattern.FindStringSubmatch(token)
		mark, length, err := idstate.ParsePlaceholderMatch(groups)
		if err != nil {
			return ""
		}
		info := marks.Get(mark)
		if info == nil {
			return ""
		}
		if info.NewOID != "" && length <= len(info.NewOID) {
			return info.NewOID[:length]
		}
		if info.OriginalOID != "" && length <= len(info.OriginalOID) {
			return info.OriginalOID[:length]
		}
		return ""
	})
}
