package idstate

import (
	"fmt"
	"regexp"
	"strconv"
)

// placeholderOpen/placeholderClose bracket a deferred short-hash
// substitution token. \x01 (SOH) cannot appear in a well-formed commit
// message, so it cannot collide with genuine message content.
const (
	placeholderOpen  = "\x01SH:"
	placeholderClose = "\x01"
)

// PlaceholderPattern matches every deferred substitution token emitted by
// pipeline.Context.rewriteShortHashes, capturing the mark and the display
// length of the hex run it replaced.
var PlaceholderPattern = regexp.MustCompile(`\x01SH:(\d+):(\d+)\x01`)

// FormatPlaceholder builds the token that stands in for an as-yet-unknown
// new-oid prefix of the given length, for the commit identified by mark.
func FormatPlaceholder(mark, length int) string {
	return fmt.Sprintf("%s%d:%d%s", placeholderOpen, mark, length, placeholderClose)
}

// ParsePlaceholderMatch decodes one regex submatch captured via
// PlaceholderPattern.FindAllStringSubmatch into (mark, length).
func ParsePlaceholderMatch(groups []string) (mark, length int, err error) {
	mark, err = strconv.Atoi(groups[1])
	if err != nil {
		return 0, 0, err
	}
	length, err = strconv.Atoi(groups[2])
	if err != nil {
		return 0, 0, err
	}
	return mark, length, nil
}
