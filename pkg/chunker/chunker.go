// Package chunker splits text into bounded chunks for synthesis.
package chunker

import (
	"strings"
	"unicode"
)

// Split divides text into an ordered sequence of chunks, each at most
// maxChunkChars characters long. Inputs that already fit are returned as a
// single chunk with whitespace preserved. Longer inputs are cut preferably at
// the last sentence terminator inside the window, then at the last word
// boundary, and as a last resort at the hard character limit. Whitespace at a
// cut point is consumed. Splitting never fails.
func Split(text string, maxChunkChars int) []string {
	if text == "" {
		return nil
	}
	if maxChunkChars < 1 {
		maxChunkChars = 1
	}

	runes := []rune(text)
	if len(runes) <= maxChunkChars {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		if len(runes)-start <= maxChunkChars {
			appendChunk(&chunks, string(runes[start:]))
			break
		}

		end := start + maxChunkChars
		cut, consumeWS := findCut(runes, start, end)

		appendChunk(&chunks, string(runes[start:cut]))
		start = cut
		if consumeWS {
			for start < len(runes) && unicode.IsSpace(runes[start]) {
				start++
			}
		}
	}

	return chunks
}

// findCut locates the cut position within the window [start, end).
// It returns the exclusive end of the chunk and whether whitespace following
// the cut should be consumed.
func findCut(runes []rune, start, end int) (int, bool) {
	// Last sentence terminator followed by whitespace wins.
	for i := end - 1; i > start; i-- {
		if isTerminator(runes[i]) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			return i + 1, true
		}
	}

	// Fall back to the last word boundary.
	for i := end - 1; i > start; i-- {
		if unicode.IsSpace(runes[i]) {
			return i, true
		}
	}

	// Degenerate long token: hard cut.
	return end, false
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// appendChunk adds a chunk unless it carries no speakable content.
func appendChunk(chunks *[]string, chunk string) {
	if strings.TrimSpace(chunk) == "" {
		return
	}
	*chunks = append(*chunks, chunk)
}
