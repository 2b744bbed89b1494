// Package rules holds the user-supplied rule tables that drive the
// rewrite: path selection, path rename, and content/message replacement.
package rules

import (
	"regexp"

	"github.com/rcowham/gitfilterrs/pathutil"
)

// PathKind distinguishes how a PathRule matches.
type PathKind int

const (
	// PathPrefix matches paths at or under a literal directory prefix.
	PathPrefix PathKind = iota
	// PathGlob matches using filter-repo glob syntax.
	PathGlob
	// PathRegex matches using a regex; it is not anchored, so the
	// pattern itself must carry any ^/$ anchors.
	PathRegex
)

// PathRule is a single include-selection rule.
type PathRule struct {
	Kind    PathKind
	Literal string
	glob    *pathutil.GlobMatcher
	regex   *regexp.Regexp
}

// NewPrefixRule builds a literal directory-prefix rule.
func NewPrefixRule(prefix string) PathRule {
	return PathRule{Kind: PathPrefix, Literal: prefix}
}

// NewGlobRule compiles a glob-pattern rule.
func NewGlobRule(pattern string) (PathRule, error) {
	m, err := pathutil.CompileGlob(pattern)
	if err != nil {
		return PathRule{}, err
	}
	return PathRule{Kind: PathGlob, Literal: pattern, glob: m}, nil
}

// NewRegexRule compiles a regex-pattern rule.
func NewRegexRule(pattern string) (PathRule, error) {
	re, err := pathutil.CompileRegex(pattern)
	if err != nil {
		return PathRule{}, err
	}
	return PathRule{Kind: PathRegex, Literal: pattern, regex: re}, nil
}

func (r PathRule) match(path string) bool {
	switch r.Kind {
	case PathPrefix:
		return pathutil.HasPathPrefix(path, r.Literal)
	case PathGlob:
		return r.glob.Match(path)
	case PathRegex:
		return r.regex.MatchString(path)
	default:
		return false
	}
}

// PathSelector decides, for every candidate path, whether it survives the
// rewrite. An empty rule set means "include everything" per spec.md §4.2.
type PathSelector struct {
	Rules  []PathRule
	Invert bool
}

// Include reports whether path should be kept in the rewritten history.
func (s *PathSelector) Include(path string) bool {
	if len(s.Rules) == 0 {
		return true
	}
	matched := false
	for _, r := range s.Rules {
		if r.match(path) {
			matched = true
			break
		}
	}
	if s.Invert {
		return !matched
	}
	return matched
}
