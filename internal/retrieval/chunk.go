package retrieval

import "strings"

// MaxChunks caps the chunk count so one embedding batch covers the corpus.
const MaxChunks = 95

// SplitChunks splits a markdown corpus at every newline that starts a
// heading line and at every run of two or more newlines. Pieces are trimmed
// and empty pieces dropped.
func SplitChunks(corpus string) []string {
	var chunks []string
	start := 0
	for i := 0; i < len(corpus); i++ {
		if corpus[i] != '\n' {
			continue
		}

		end := i + 1
		for end < len(corpus) && corpus[end] == '\n' {
			end++
		}
		if end-i < 2 && !startsHeading(corpus[end:]) {
			continue
		}

		chunks = appendTrimmed(chunks, corpus[start:i])
		start = end
		i = end - 1
	}
	return appendTrimmed(chunks, corpus[start:])
}

// MergeChunks joins adjacent chunks into equal-sized groups when there are
// more than limit of them. Each group is joined with a blank line.
func MergeChunks(chunks []string, limit int) []string {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}

	group := (len(chunks) + limit - 1) / limit
	merged := make([]string, 0, limit)
	for i := 0; i < len(chunks); i += group {
		end := min(i+group, len(chunks))
		merged = append(merged, strings.Join(chunks[i:end], "\n\n"))
	}
	return merged
}

// Chunk is SplitChunks followed by MergeChunks at MaxChunks.
func Chunk(corpus string) []string {
	return MergeChunks(SplitChunks(corpus), MaxChunks)
}

// startsHeading reports whether s begins with one or more '#' followed by whitespace.
func startsHeading(s string) bool {
	n := 0
	for n < len(s) && s[n] == '#' {
		n++
	}
	if n == 0 || n == len(s) {
		return false
	}
	switch s[n] {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

func appendTrimmed(chunks []string, piece string) []string {
	if piece = strings.TrimSpace(piece); piece != "" {
		chunks = append(chunks, piece)
	}
	return chunks
}
