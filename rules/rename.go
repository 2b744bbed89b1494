package rules

import "strings"

// PrefixRename is one entry of an ordered rename table: the first old
// prefix matching at position 0 of a candidate is replaced by new.
type PrefixRename struct {
	Old string
	New string
}

// RenameTable is an ordered list of PrefixRename entries, shared by path
// rename, tag-ref rename, and branch-ref rename per spec.md §3/§4.2.
type RenameTable struct {
	Entries []PrefixRename
}

// Apply returns the renamed value and whether any rule matched. An empty
// Old prepends New to every value; an empty New strips the matched
// prefix. Only the first matching entry is applied.
func (t *RenameTable) Apply(value string) (string, bool) {
	for _, e := range t.Entries {
		if e.Old == "" {
			return e.New + value, true
		}
		if strings.HasPrefix(value, e.Old) {
			return e.New + value[len(e.Old):], true
		}
	}
	return value, false
}

// ApplyOrSame is a convenience wrapper returning value unchanged when no
// rule matches.
func (t *RenameTable) ApplyOrSame(value string) string {
	out, _ := t.Apply(value)
	return out
}
