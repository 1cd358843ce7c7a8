package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	t.Run("Identical strings score 1", func(t *testing.T) {
		assert.Equal(t, 1.0, Similarity("jus orange", "jus orange"))
	})

	t.Run("Empty strings score 1", func(t *testing.T) {
		assert.Equal(t, 1.0, Similarity("", ""))
	})

	t.Run("Disjoint strings score low", func(t *testing.T) {
		assert.Less(t, Similarity("abc", "xyz"), 0.1)
	})

	t.Run("One edit over ten runes", func(t *testing.T) {
		assert.InDelta(t, 0.9, Similarity("jus orange", "jus orangs"), 1e-9)
	})

	t.Run("Symmetric", func(t *testing.T) {
		assert.Equal(t, Similarity("lait demi", "lait entier"), Similarity("lait entier", "lait demi"))
	})

	t.Run("Handles multibyte runes", func(t *testing.T) {
		// One rune substituted out of four.
		assert.InDelta(t, 0.75, Similarity("thé", "the"), 0.26)
	})
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"a", "", 1},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"biere", "bieres", 1},
		{"yaourt", "yaourt", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, levenshtein([]rune(tc.a), []rune(tc.b)), "%q vs %q", tc.a, tc.b)
	}
}
