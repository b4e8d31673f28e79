// Package splitter breaks file text into overlapping chunks bounded by size.
//
// The algorithm splits on the highest-priority separator present in the text
// (paragraph break, then line break, then space), recurses into pieces that
// still exceed the bound with the remaining separators, and hard-cuts as a
// last resort. Adjacent small pieces are merged back together up to the size
// bound, carrying up to Overlap trailing characters into the next chunk so
// context survives the boundary.
package splitter

import (
	"strings"
	"unicode/utf8"
)

// Default chunking parameters.
const (
	DefaultChunkSize = 1500
	DefaultOverlap   = 200
)

// DefaultSeparators in priority order. The empty string is the hard-cut
// fallback and must stay last.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter splits text into chunks of at most ChunkSize characters where
// possible, with up to Overlap characters shared between consecutive chunks.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

// New returns a Splitter, falling back to defaults for non-positive sizes.
func New(chunkSize, overlap int) Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultOverlap
		if overlap >= chunkSize {
			overlap = chunkSize / 4
		}
	}
	return Splitter{ChunkSize: chunkSize, Overlap: overlap}
}

// Split returns the ordered chunk sequence for text. Splitting is
// deterministic: the same input always yields the same chunks.
// Empty or whitespace-only input yields no chunks.
func (s Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, DefaultSeparators)
}

func (s Splitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, cand := range separators {
		if cand == "" || strings.Contains(text, cand) {
			sep = cand
			rest = separators[i+1:]
			break
		}
	}

	if sep == "" {
		return s.hardCut(text)
	}

	pieces := strings.Split(text, sep)

	var chunks []string
	var small []string
	for _, piece := range pieces {
		if runeLen(piece) <= s.ChunkSize {
			small = append(small, piece)
			continue
		}
		// Flush what fits, then descend into the oversized piece with the
		// lower-priority separators.
		if len(small) > 0 {
			chunks = append(chunks, s.merge(small, sep)...)
			small = nil
		}
		chunks = append(chunks, s.split(piece, rest)...)
	}
	if len(small) > 0 {
		chunks = append(chunks, s.merge(small, sep)...)
	}
	return chunks
}

// merge packs pieces (each already within the bound) into chunks of at most
// ChunkSize characters, keeping a tail of up to Overlap characters as the
// start of the next chunk.
func (s Splitter) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)

	var chunks []string
	var window []string
	total := 0

	flush := func() {
		if c := strings.TrimSpace(strings.Join(window, sep)); c != "" {
			chunks = append(chunks, c)
		}
	}

	for _, piece := range pieces {
		pLen := runeLen(piece)
		add := pLen
		if len(window) > 0 {
			add += sepLen
		}

		if len(window) > 0 && total+add > s.ChunkSize {
			flush()
			// Drop leading pieces until the retained tail is within the
			// overlap budget and the next piece fits.
			for len(window) > 0 && (total > s.Overlap || (total+add > s.ChunkSize && total > 0)) {
				dec := runeLen(window[0])
				if len(window) > 1 {
					dec += sepLen
				}
				total -= dec
				window = window[1:]
			}
			add = pLen
			if len(window) > 0 {
				add += sepLen
			}
		}

		window = append(window, piece)
		total += add
	}
	flush()
	return chunks
}

// hardCut slices text into ChunkSize windows stepping ChunkSize-Overlap,
// used when no separator can bring a piece under the bound.
func (s Splitter) hardCut(text string) []string {
	runes := []rune(text)
	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
