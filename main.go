// gitfilterrs program
//
// This processes a Git repository's full history through a streaming
// fast-export/fast-import pipeline, applying path, rename, replacement,
// and blob-size rules as it goes, then atomically moves the rewritten
// refs into place.
//
// Design:
// The orchestrator (internal/engine) drives the single cooperative loop:
//     Reads the next record from the exporter using go-libgitfastimport
//     Blobs are filtered by size/id-list policy and any content
//         replacement table, then forwarded to the importer
//     Commits are buffered until their CmdCommitEnd, rewritten (ref
//         rename, message rewrite, path filter/rename, parent fixup,
//         empty-commit pruning) and forwarded
//     Tags and lightweight tag resets are buffered and flushed, last
//         one per ref winning, immediately before the stream ends
// Once the importer exits, the commit-map/ref-map audit artifacts are
// written and the rewritten refs are moved from their staging namespace
// into the real one in a single batched ref-update transaction.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/profile"
	"github.com/perforce/p4prometheus/version"
	"github.com/sirupsen/logrus"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/rcowham/gitfilterrs/config"
	"github.com/rcowham/gitfilterrs/internal/engine"
	"github.com/rcowham/gitfilterrs/rules"
)

func main() {
	var (
		repoDir = kingpin.Arg(
			"source",
			"Repository to rewrite in place.",
		).Default(".").String()
		configFile = kingpin.Flag(
			"config",
			"Local defaults file for analyze-mode thresholds.",
		).Default(config.DefaultConfigFile).Short('c').String()
		refs = kingpin.Flag(
			"ref",
			"Ref to include (repeatable; default all refs).",
		).Strings()

		pathRules = kingpin.Flag(
			"path",
			"Literal directory-prefix path to keep (repeatable).",
		).Strings()
		pathGlobRules = kingpin.Flag(
			"path-glob",
			"Glob path pattern to keep (repeatable).",
		).Strings()
		pathRegexRules = kingpin.Flag(
			"path-regex",
			"Regex path pattern to keep, matched anywhere in the path unless anchored with ^/$ (repeatable).",
		).Strings()
		invertPaths = kingpin.Flag(
			"invert-paths",
			"Keep paths that do NOT match any --path*/--path-glob/--path-regex rule.",
		).Bool()
		pathRename = kingpin.Flag(
			"path-rename",
			"OLD:NEW path prefix rename (repeatable, first match wins).",
		).Strings()
		subdirFilter = kingpin.Flag(
			"subdirectory-filter",
			"Keep only DIR, re-rooting it to the repository top.",
		).String()

		branchRename = kingpin.Flag(
			"branch-rename",
			"OLD:NEW branch-ref prefix rename (repeatable).",
		).Strings()
		tagRename = kingpin.Flag(
			"tag-rename",
			"OLD:NEW tag-ref prefix rename (repeatable).",
		).Strings()

		replaceMessageFile = kingpin.Flag(
			"replace-message",
			"File of commit/tag message replacement rules.",
		).String()
		replaceTextFile = kingpin.Flag(
			"replace-text",
			"File of blob content replacement rules.",
		).String()
		maxBlobSize = kingpin.Flag(
			"max-blob-size",
			"Strip blobs larger than this (accepts K/M/G suffixes); 0 disables.",
		).Default("0").String()
		stripBlobsFile = kingpin.Flag(
			"strip-blobs-with-ids",
			"File listing 40-hex object ids to strip regardless of size.",
		).String()

		dryRun = kingpin.Flag(
			"dry-run",
			"Compute the rewrite and write audit artifacts, but leave refs untouched.",
		).Bool()
		quiet = kingpin.Flag(
			"quiet",
			"Suppress report.txt.",
		).Bool()
		writeReport = kingpin.Flag(
			"write-report",
			"Write report.txt with action counters.",
		).Default("true").Bool()
		backup = kingpin.Flag(
			"backup",
			"Write a pre-rewrite bundle backup before mutating anything.",
		).Bool()
		backupPath = kingpin.Flag(
			"backup-path",
			"Explicit path for the --backup bundle.",
		).String()
		partial = kingpin.Flag(
			"partial",
			"Keep the origin remote and skip the --cleanup step.",
		).Bool()
		sensitive = kingpin.Flag(
			"sensitive",
			"Fetch every ref from origin first and never remove it afterward.",
		).Bool()
		noFetch = kingpin.Flag(
			"no-fetch",
			"Skip the --sensitive pre-fetch.",
		).Bool()
		force = kingpin.Flag(
			"force",
			"Continue past a failed --enforce-sanity check.",
		).Bool()
		enforceSanity = kingpin.Flag(
			"enforce-sanity",
			"Run a preflight sanity check before rewriting.",
		).Bool()
		cleanup = kingpin.Flag(
			"cleanup",
			"Expire reflogs and gc after a successful rewrite.",
		).Bool()

		dateOrder = kingpin.Flag(
			"date-order",
			"Debug: export in date order instead of topological order.",
		).Bool()
		quotePath = kingpin.Flag(
			"quote-path",
			"Debug: ask the exporter to quote non-ASCII paths.",
		).Bool()
		debugCapture = kingpin.Flag(
			"debug-capture",
			"Debug: save fast-export.original/fast-export.filtered.",
		).Bool()
		feStreamOverride = kingpin.Flag(
			"fe-stream-override",
			"Debug/testing: read this file instead of invoking the exporter.",
		).String()

		debug = kingpin.Flag(
			"debug",
			"Enable debugging level (repeatable for more verbosity).",
		).Short('d').Counter()
		cpuProfile = kingpin.Flag(
			"cpuprofile",
			"Write a CPU profile to this directory.",
		).String()
		memProfile = kingpin.Flag(
			"memprofile",
			"Write a memory profile to this directory.",
		).String()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("gitfilterrs")).Author("Robert Cowham")
	kingpin.CommandLine.Help = "Rewrites a git repository's history in place: path filtering, renames, message/content replacement, blob stripping, and ref cleanup.\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}

	if *cpuProfile != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*cpuProfile)).Stop()
	} else if *memProfile != "" {
		defer profile.Start(profile.MemProfile, profile.ProfilePath(*memProfile)).Stop()
	}

	cfgPath := *configFile
	if !filepath.IsAbs(cfgPath) {
		cfgPath = filepath.Join(*repoDir, cfgPath)
	}
	if _, err := config.LoadFile(cfgPath); err != nil {
		logger.Errorf("error loading config file: %v", err)
		os.Exit(int(engine.ExitUserError))
	}

	opts, err := buildOptions(*repoDir, optFlags{
		refs:                *refs,
		pathRules:           *pathRules,
		pathGlobRules:       *pathGlobRules,
		pathRegexRules:      *pathRegexRules,
		invertPaths:         *invertPaths,
		pathRename:          *pathRename,
		subdirFilter:        *subdirFilter,
		branchRename:        *branchRename,
		tagRename:           *tagRename,
		replaceMessageFile:  *replaceMessageFile,
		replaceTextFile:     *replaceTextFile,
		maxBlobSize:         *maxBlobSize,
		stripBlobsFile:      *stripBlobsFile,
		dryRun:              *dryRun,
		quiet:               *quiet,
		writeReport:         *writeReport,
		backup:              *backup,
		backupPath:          *backupPath,
		partial:             *partial,
		sensitive:           *sensitive,
		noFetch:             *noFetch,
		force:               *force,
		enforceSanity:       *enforceSanity,
		cleanup:             *cleanup,
		dateOrder:           *dateOrder,
		quotePath:           *quotePath,
		debugCapture:        *debugCapture,
		feStreamOverride:    *feStreamOverride,
	})
	if err != nil {
		logger.Errorf("error parsing options: %v", err)
		os.Exit(int(engine.ExitUserError))
	}

	logger.Infof("%v", version.Print("gitfilterrs"))
	logger.Infof("rewriting %s", *repoDir)

	result, err := engine.Run(logger, opts)
	if err != nil {
		logger.Errorf("rewrite failed: %v", err)
		os.Exit(int(engine.CodeOf(err)))
	}

	logger.Infof("done; artifacts under %s", result.ResultsDir)
	if result.BackupPath != "" {
		logger.Infof("backup bundle: %s", result.BackupPath)
	}
}

// optFlags mirrors the flag values main() parses, kept as a plain struct
// so buildOptions stays testable without kingpin in the loop.
type optFlags struct {
	refs               []string
	pathRules          []string
	pathGlobRules      []string
	pathRegexRules     []string
	invertPaths        bool
	pathRename         []string
	subdirFilter       string
	branchRename       []string
	tagRename          []string
	replaceMessageFile string
	replaceTextFile    string
	maxBlobSize        string
	stripBlobsFile     string
	dryRun             bool
	quiet              bool
	writeReport        bool
	backup             bool
	backupPath         string
	partial            bool
	sensitive          bool
	noFetch            bool
	force              bool
	enforceSanity      bool
	cleanup            bool
	dateOrder          bool
	quotePath          bool
	debugCapture       bool
	feStreamOverride   string
}

// buildOptions translates parsed flags into an engine.Options, doing the
// file loading and rule-table construction kingpin itself has no opinion
// about.
func buildOptions(repoDir string, f optFlags) (*engine.Options, error) {
	opts := &engine.Options{
		RepoDir:          repoDir,
		Refs:             f.refs,
		DryRun:           f.dryRun,
		Quiet:            f.quiet,
		WriteReport:      f.writeReport,
		Backup:           f.backup,
		BackupPath:       f.backupPath,
		Partial:          f.partial,
		Sensitive:        f.sensitive,
		NoFetch:          f.noFetch,
		Force:            f.force,
		EnforceSanity:    f.enforceSanity,
		Cleanup:          f.cleanup,
		DebugCapture:     f.debugCapture,
		DateOrder:        f.dateOrder,
		QuotePath:        f.quotePath,
		FEStreamOverride: f.feStreamOverride,
	}

	selector := &rules.PathSelector{Invert: f.invertPaths}
	for _, p := range f.pathRules {
		selector.Rules = append(selector.Rules, rules.NewPrefixRule(p))
	}
	for _, p := range f.pathGlobRules {
		r, err := rules.NewGlobRule(p)
		if err != nil {
			return nil, fmt.Errorf("--path-glob %q: %w", p, err)
		}
		selector.Rules = append(selector.Rules, r)
	}
	for _, p := range f.pathRegexRules {
		r, err := rules.NewRegexRule(p)
		if err != nil {
			return nil, fmt.Errorf("--path-regex %q: %w", p, err)
		}
		selector.Rules = append(selector.Rules, r)
	}
	opts.PathSelector = selector

	pathRenameTable := &rules.RenameTable{}
	for _, entry := range f.pathRename {
		pr, err := parsePrefixRename(entry)
		if err != nil {
			return nil, fmt.Errorf("--path-rename %q: %w", entry, err)
		}
		pathRenameTable.Entries = append(pathRenameTable.Entries, pr)
	}
	if f.subdirFilter != "" {
		prefix := strings.TrimSuffix(f.subdirFilter, "/") + "/"
		selector.Rules = append(selector.Rules, rules.NewPrefixRule(prefix))
		pathRenameTable.Entries = append(pathRenameTable.Entries, rules.PrefixRename{Old: prefix, New: ""})
	}
	opts.PathRename = pathRenameTable

	branchRenameTable := &rules.RenameTable{}
	for _, entry := range f.branchRename {
		pr, err := parsePrefixRename(entry)
		if err != nil {
			return nil, fmt.Errorf("--branch-rename %q: %w", entry, err)
		}
		branchRenameTable.Entries = append(branchRenameTable.Entries, refQualify("refs/heads/", pr))
	}
	opts.BranchRename = branchRenameTable

	tagRenameTable := &rules.RenameTable{}
	for _, entry := range f.tagRename {
		pr, err := parsePrefixRename(entry)
		if err != nil {
			return nil, fmt.Errorf("--tag-rename %q: %w", entry, err)
		}
		tagRenameTable.Entries = append(tagRenameTable.Entries, refQualify("refs/tags/", pr))
	}
	opts.TagRename = tagRenameTable

	if f.replaceMessageFile != "" {
		table, err := loadReplaceFile(f.replaceMessageFile)
		if err != nil {
			return nil, fmt.Errorf("--replace-message: %w", err)
		}
		opts.MessageReplace = table
	}
	if f.replaceTextFile != "" {
		table, err := loadReplaceFile(f.replaceTextFile)
		if err != nil {
			return nil, fmt.Errorf("--replace-text: %w", err)
		}
		opts.BlobReplace = table
	}

	size, err := parseSize(f.maxBlobSize)
	if err != nil {
		return nil, fmt.Errorf("--max-blob-size %q: %w", f.maxBlobSize, err)
	}
	opts.MaxBlobSize = size

	if f.stripBlobsFile != "" {
		ids, err := loadIDListFile(f.stripBlobsFile)
		if err != nil {
			return nil, fmt.Errorf("--strip-blobs-with-ids: %w", err)
		}
		opts.StripIDs = ids
	}

	return opts, nil
}

// parsePrefixRename splits "OLD:NEW" into a rules.PrefixRename. An empty
// OLD prepends NEW to every value; an empty NEW strips the matched
// prefix, per rules.RenameTable.Apply.
func parsePrefixRename(entry string) (rules.PrefixRename, error) {
	idx := strings.Index(entry, ":")
	if idx < 0 {
		return rules.PrefixRename{}, fmt.Errorf("expected OLD:NEW, got %q", entry)
	}
	return rules.PrefixRename{Old: entry[:idx], New: entry[idx+1:]}, nil
}

// refQualify prepends refPrefix (e.g. "refs/heads/", "refs/tags/") to both
// sides of pr. --branch-rename/--tag-rename take short names (e.g.
// "v1.:release/v1."), but BranchRename/TagRename are matched against the
// full ref string, so the table's own prefixes need the same qualification.
func refQualify(refPrefix string, pr rules.PrefixRename) rules.PrefixRename {
	return rules.PrefixRename{Old: refPrefix + pr.Old, New: refPrefix + pr.New}
}

// parseSize parses a byte count with an optional K/M/G suffix (base 1024).
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	mult := int64(1)
	switch last := s[len(s)-1]; last {
	case 'k', 'K':
		mult = 1024
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1024 * 1024
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}

func loadReplaceFile(path string) (*rules.ReplaceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return rules.ParseReplaceRulesFile(f)
}

// loadIDListFile reads one 40-hex object id per line, ignoring blank
// lines and '#' comments, matching rules.ParseReplaceRulesFile's
// conventions for rule files.
func loadIDListFile(path string) (map[string]bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool)
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids[line] = true
	}
	return ids, nil
}
