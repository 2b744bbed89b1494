package pathutil

import (
	"regexp"
	"strings"
)

// GlobMatcher compiles a filter-repo style glob (`*` matches any run of
// bytes except '/', `?` matches one non-'/' byte, `**` matches any bytes
// including '/') into a regexp-backed matcher.
type GlobMatcher struct {
	re *regexp.Regexp
}

// CompileGlob translates pattern into an anchored matcher.
func CompileGlob(pattern string) (*GlobMatcher, error) {
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '*' && i+1 < len(runes) && runes[i+1] == '*':
			b.WriteString(".*")
			i++
		case c == '*':
			b.WriteString("[^/]*")
		case c == '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	return &GlobMatcher{re: re}, nil
}

// Match reports whether path matches the compiled glob.
func (g *GlobMatcher) Match(path string) bool {
	return g.re.MatchString(path)
}

// CompileRegex compiles a byte-mode regex pattern for path matching. The
// caller is responsible for anchoring; no look-around or backreferences
// are supported by Go's RE2-based regexp package, matching spec.md's
// "byte-mode regex without look-around or backreferences" requirement.
func CompileRegex(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(pattern)
}

// HasPathPrefix reports whether path is exactly prefix or begins with
// prefix followed by '/', i.e. prefix selects path or an ancestor
// directory of it. A trailing '/' on prefix is treated as already
// marking a directory boundary rather than appended a second time.
func HasPathPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}
