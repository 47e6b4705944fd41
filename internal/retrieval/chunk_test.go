package retrieval

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name   string
		corpus string
		want   []string
	}{
		{"empty", "", nil},
		{"whitespace only", "\n\n  \n", nil},
		{"blank line run", "alpha\n\n\n\nbeta", []string{"alpha", "beta"}},
		{"single newline kept", "line one\nline two", []string{"line one\nline two"}},
		{"heading boundary", "intro\n# Refunds\nbody", []string{"intro", "# Refunds\nbody"}},
		{"deeper heading", "intro\n### Deep\nbody", []string{"intro", "### Deep\nbody"}},
		{"hash without space is not a heading", "price\n#1 item\nmore", []string{"price\n#1 item\nmore"}},
		{"trimmed pieces", "  a  \n\n\tb\t", []string{"a", "b"}},
		{"heading after blank lines", "a\n\n# H\ntext", []string{"a", "# H\ntext"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitChunks(tt.corpus))
		})
	}
}

func TestSplitChunks_PolicyCorpus(t *testing.T) {
	chunks := SplitChunks(policyCorpus)
	assert.Len(t, chunks, 4)
	assert.True(t, strings.HasPrefix(chunks[0], "# Refunds"))
	assert.True(t, strings.HasPrefix(chunks[3], "# Pets"))
}

func TestMergeChunks(t *testing.T) {
	var chunks []string
	for i := 0; i < 200; i++ {
		chunks = append(chunks, fmt.Sprintf("c%d", i))
	}

	merged := MergeChunks(chunks, MaxChunks)
	// ceil(200/95) = 3 per group
	assert.Len(t, merged, 67)
	assert.Equal(t, "c0\n\nc1\n\nc2", merged[0])
	assert.Equal(t, "c198\n\nc199", merged[66])

	assert.Equal(t, chunks[:95], MergeChunks(chunks[:95], MaxChunks))
	assert.Len(t, MergeChunks(chunks[:96], MaxChunks), 48)
}

func TestMergeChunks_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 400).Draw(rt, "n")
		limit := rapid.IntRange(1, 120).Draw(rt, "limit")
		chunks := make([]string, n)
		for i := range chunks {
			chunks[i] = fmt.Sprintf("chunk-%d", i)
		}

		merged := MergeChunks(chunks, limit)
		if len(merged) > limit && n > 0 {
			rt.Fatalf("merged %d chunks into %d groups, limit %d", n, len(merged), limit)
		}
		if strings.Join(merged, "\n\n") != strings.Join(chunks, "\n\n") {
			rt.Fatalf("merge changed content or order")
		}
	})
}
