package idstate

// HexTrie indexes every original-oid seen during the run so that a
// contiguous hex run of length 7-40 found in a commit or tag message can
// be recognized as a short reference to a specific mark, per spec.md
// §4.6 step 2. Ambiguous prefixes (more than one original-oid sharing
// the prefix) are left unchanged.
//
// The trie deliberately resolves a prefix to a mark, not a new oid: per
// spec.md's C5 description, the mark -> new-oid table is only filled in
// after the importer exits, long after message rewriting runs during the
// single forward stream pass. The actual hex substitution is therefore
// deferred; see pipeline.Context.rewriteShortHashes and
// finalize.RewriteShortHashes for the two halves of that handoff.
type hexNode struct {
	children [16]*hexNode
	mark     int  // valid only when isLeaf
	isLeaf   bool // true at the node that is an exact full-oid path
	count    int  // number of full oids passing through this node
}

type HexTrie struct {
	root *hexNode
}

// NewHexTrie returns an empty trie.
func NewHexTrie() *HexTrie {
	return &HexTrie{root: &hexNode{}}
}

func nibble(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}

// Insert adds a full 40-hex original oid to the trie, associated with the
// mark that carries it.
func (t *HexTrie) Insert(oid string, mark int) {
	n := t.root
	n.count++
	for i := 0; i < len(oid); i++ {
		idx, ok := nibble(oid[i])
		if !ok {
			return
		}
		if n.children[idx] == nil {
			n.children[idx] = &hexNode{}
		}
		n = n.children[idx]
		n.count++
	}
	n.mark = mark
	n.isLeaf = true
}

// Lookup resolves a hex prefix to the mark of the unique original-oid
// that has it, or (0, false) if no oid has that prefix or more than one
// does.
func (t *HexTrie) Lookup(prefix string) (int, bool) {
	n := t.root
	for i := 0; i < len(prefix); i++ {
		idx, ok := nibble(prefix[i])
		if !ok {
			return 0, false
		}
		if n.children[idx] == nil {
			return 0, false
		}
		n = n.children[idx]
	}
	if n.count != 1 {
		return 0, false
	}
	// Walk down to the single full oid recorded under this node.
	for !n.isLeaf {
		for _, c := range n.children {
			if c != nil {
				n = c
				break
			}
		}
	}
	return n.mark, true
}
