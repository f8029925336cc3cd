package chunker

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stripSpace removes all whitespace so reconstructions can be compared
// regardless of the whitespace consumed at cut points.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func TestSplitNoOpWhenTextFits(t *testing.T) {
	tests := []string{
		"Hello world.",
		"  leading and trailing whitespace preserved  ",
		"short",
		"exactly ten",
	}

	for _, text := range tests {
		got := Split(text, 100)
		require.Len(t, got, 1, "input %q", text)
		assert.Equal(t, text, got[0])
	}
}

func TestSplitEmptyInput(t *testing.T) {
	assert.Empty(t, Split("", 100))
}

func TestSplitPrefersSentenceTerminator(t *testing.T) {
	text := "First sentence here. Second sentence follows afterwards."
	got := Split(text, 30)

	require.NotEmpty(t, got)
	assert.Equal(t, "First sentence here.", got[0])
	for _, chunk := range got {
		assert.LessOrEqual(t, len([]rune(chunk)), 30)
		assert.NotEmpty(t, strings.TrimSpace(chunk))
	}
}

func TestSplitFallsBackToWordBoundary(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta iota kappa"
	got := Split(text, 20)

	require.Greater(t, len(got), 1)
	for _, chunk := range got {
		assert.LessOrEqual(t, len([]rune(chunk)), 20)
		// No chunk should start or end mid-word when spaces exist.
		assert.Equal(t, chunk, strings.TrimSpace(chunk))
	}
	assert.Equal(t, stripSpace(text), stripSpace(strings.Join(got, "")))
}

func TestSplitHardCutsDegenerateToken(t *testing.T) {
	text := strings.Repeat("x", 95)
	got := Split(text, 10)

	require.Len(t, got, 10)
	for i, chunk := range got {
		if i < 9 {
			assert.Len(t, chunk, 10)
		}
	}
	assert.Equal(t, text, strings.Join(got, ""))
}

func TestSplitBounds(t *testing.T) {
	// Every chunk within bounds, non-empty, reconstructable.
	inputs := []string{
		strings.Repeat("The quick brown fox jumps over the lazy dog. ", 120),
		strings.Repeat("word ", 500),
		strings.Repeat("a", 1000) + " " + strings.Repeat("b", 1000),
		"Ünïcödé sentence one. Ünïcödé sentence two! A third? Sure.",
	}

	for _, text := range inputs {
		for _, limit := range []int{25, 100, 512} {
			got := Split(text, limit)
			require.NotEmpty(t, got)
			for _, chunk := range got {
				assert.LessOrEqual(t, len([]rune(chunk)), limit)
				assert.NotEmpty(t, chunk)
			}
			assert.Equal(t, stripSpace(text), stripSpace(strings.Join(got, "")))
		}
	}
}

func TestSplitLongDocument(t *testing.T) {
	// 12,000 characters with maxChunkLength=5000 must yield 3 chunks.
	sentence := "This sentence is exactly forty chars ok. " // 41 with trailing space
	text := strings.Repeat(sentence, 293)[:12000]

	got := Split(text, 5000)
	require.Len(t, got, 3)
	for _, chunk := range got {
		assert.LessOrEqual(t, len([]rune(chunk)), 5000)
	}
	assert.Equal(t, stripSpace(text), stripSpace(strings.Join(got, "")))
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("Some repeatable text with punctuation. ", 50)
	first := Split(text, 200)
	second := Split(text, 200)
	assert.Equal(t, first, second)
}
