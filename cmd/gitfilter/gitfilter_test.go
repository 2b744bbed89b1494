// Tests for gitfilter

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStream = `blob
mark :1
data 5
hello
commit refs/heads/main
mark :2
committer Bob <bob@example.com> 0 +0000
data 9
a commit
M 100644 :1 file.txt
`

func TestAnonymizeReplacesBlobContentOnly(t *testing.T) {
	in := strings.NewReader(testStream)
	var out bytes.Buffer
	require.NoError(t, anonymize(in, &out))

	written := out.String()
	assert.NotContains(t, written, "hello")
	assert.Contains(t, written, "data 5\nblob ")
	assert.Contains(t, written, "commit refs/heads/main")
	assert.Contains(t, written, "M 100644 :1 file.txt")
}

func TestAnonymizedContentPreservesLength(t *testing.T) {
	data := anonymizedContent(5, 0)
	assert.Len(t, data, 5)

	data = anonymizedContent(1, 3)
	assert.Len(t, data, 1)

	data = anonymizedContent(0, 0)
	assert.Len(t, data, 0)
}
