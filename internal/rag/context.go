package rag

import (
	"strings"

	"github.com/pmvlabs/ragd/internal/vectorstore"
)

// contextSeparator joins retrieved chunks in the assembled context block.
const contextSeparator = "\n\n"

// AssembleContext joins search results into a single context block of at
// most maxChars characters, preserving result order.
//
// Results are whole or absent: assembly stops before the first result that
// would push the block past the budget, so a chunk is never cut mid-text.
// If even the first result does not fit, the block is empty.
func AssembleContext(results []vectorstore.SearchResult, maxChars int) string {
	if len(results) == 0 || maxChars <= 0 {
		return ""
	}

	var b strings.Builder
	total := 0
	for _, r := range results {
		add := len(r.Content)
		if b.Len() > 0 {
			add += len(contextSeparator)
		}
		if total+add > maxChars {
			break
		}
		if b.Len() > 0 {
			b.WriteString(contextSeparator)
		}
		b.WriteString(r.Content)
		total += add
	}
	return b.String()
}
