// Package chunker splits raw text into overlapping bounded-length chunks.
//
// Chunks are the unit of storage and retrieval: each one is embedded and
// stored independently, so boundaries should fall on natural breaks where
// possible. The splitter prefers paragraph boundaries, then line boundaries,
// then word boundaries, then arbitrary character positions, tried in that
// order at each split point. Adjacent chunks share a configurable overlap of
// trailing context so meaning is not lost at the seam.
package chunker

import "strings"

// defaultSeparators is the split priority order. The empty separator splits
// between every character and is the unconditional last resort.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter splits text into chunks of at most ChunkSize characters with
// Overlap characters of shared context between adjacent chunks.
//
// Splitting is deterministic: the same input and parameters always produce
// the same chunk sequence.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewSplitter creates a Splitter. chunkSize must be positive; overlap is
// clamped into [0, chunkSize).
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// ChunkSize returns the configured maximum chunk length.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap length.
func (s *Splitter) Overlap() int { return s.overlap }

// Split splits text into chunks. Empty or whitespace-only input yields nil;
// input no longer than the chunk size yields exactly one trimmed chunk.
func (s *Splitter) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if len(trimmed) <= s.chunkSize {
		return []string{trimmed}
	}
	return s.splitText(text, s.separators)
}

// splitText recursively splits text using the first separator present in it,
// pushing oversized fragments down to finer separators.
func (s *Splitter) splitText(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = ""
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	splits := splitOn(text, separator)

	var chunks []string
	var good []string
	for _, sp := range splits {
		if len(sp) < s.chunkSize {
			good = append(good, sp)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, s.merge(good, separator)...)
			good = nil
		}
		if len(next) == 0 {
			// A single atomic token longer than the chunk size is kept
			// whole rather than dropped.
			chunks = append(chunks, sp)
		} else {
			chunks = append(chunks, s.splitText(sp, next)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good, separator)...)
	}
	return chunks
}

// splitOn splits text by separator. The empty separator splits between every
// character, respecting UTF-8 rune boundaries.
func splitOn(text, separator string) []string {
	if separator == "" {
		return strings.Split(text, "")
	}
	parts := strings.Split(text, separator)
	// Drop empty fragments produced by consecutive separators; the merge
	// step re-adds separators between kept fragments.
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return kept
}

// merge greedily joins splits into chunks of at most chunkSize characters,
// carrying overlap characters of trailing splits into the next chunk.
func (s *Splitter) merge(splits []string, separator string) []string {
	sepLen := len(separator)

	var chunks []string
	var current []string
	total := 0

	for _, sp := range splits {
		add := len(sp)
		if len(current) > 0 {
			add += sepLen
		}
		if total+add > s.chunkSize && len(current) > 0 {
			if chunk := joinSplits(current, separator); chunk != "" {
				chunks = append(chunks, chunk)
			}
			// Evict from the front until the retained tail fits the
			// overlap budget and the incoming split fits the chunk.
			for total > s.overlap || (total+add > s.chunkSize && total > 0) {
				total -= len(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
				add = len(sp)
				if len(current) > 0 {
					add += sepLen
				}
			}
		}
		current = append(current, sp)
		total += add
	}

	if chunk := joinSplits(current, separator); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func joinSplits(splits []string, separator string) string {
	return strings.TrimSpace(strings.Join(splits, separator))
}

// Stats summarizes a chunk sequence.
type Stats struct {
	TotalChunks     int     `json:"total_chunks"`
	TotalCharacters int     `json:"total_characters"`
	AvgChunkLength  float64 `json:"avg_chunk_length"`
	MinChunkLength  int     `json:"min_chunk_length"`
	MaxChunkLength  int     `json:"max_chunk_length"`
}

// ChunkStats computes statistics for a chunk sequence.
func ChunkStats(chunks []string) Stats {
	if len(chunks) == 0 {
		return Stats{}
	}
	stats := Stats{
		TotalChunks:    len(chunks),
		MinChunkLength: len(chunks[0]),
	}
	for _, c := range chunks {
		n := len(c)
		stats.TotalCharacters += n
		if n < stats.MinChunkLength {
			stats.MinChunkLength = n
		}
		if n > stats.MaxChunkLength {
			stats.MaxChunkLength = n
		}
	}
	stats.AvgChunkLength = float64(stats.TotalCharacters) / float64(len(chunks))
	return stats
}
