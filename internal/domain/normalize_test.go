package domain_test

import (
	"testing"

	"classify-orchestrator/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestTitleNormalizer_Normalize(t *testing.T) {
	n := domain.NewTitleNormalizer()

	t.Run("Folds case and strips accents", func(t *testing.T) {
		got := n.Normalize("Café   AU LAIT")
		assert.Equal(t, "cafe au lait", got.Normalized)
	})

	t.Run("Case accent and spacing variants normalize identically", func(t *testing.T) {
		a := n.Normalize("Café   AU LAIT")
		b := n.Normalize("cafe au lait")
		assert.Equal(t, a.Normalized, b.Normalized)
	})

	t.Run("Drops elision leftovers", func(t *testing.T) {
		a := n.Normalize("Jus d'Orange 1L")
		b := n.Normalize("jus orange 1l")
		assert.Equal(t, "jus orange", a.Normalized)
		assert.Equal(t, a.Normalized, b.Normalized)
	})

	t.Run("Removes packaging noise", func(t *testing.T) {
		got := n.Normalize("Biere Blonde Pack 6x33cl")
		assert.Equal(t, "biere blonde", got.Normalized)

		got = n.Normalize("Eau Minerale Bouteille 1,5L x12")
		assert.Equal(t, "eau minerale", got.Normalized)
	})

	t.Run("Preserves whitelist terms", func(t *testing.T) {
		got := n.Normalize("Chocolat Noir BIO sans sucre 100g")
		assert.Contains(t, got.Tokens, "bio")
		assert.Contains(t, got.Normalized, "sans sucre")
		assert.NotContains(t, got.Normalized, "100")
	})

	t.Run("Removes clothing sizes", func(t *testing.T) {
		got := n.Normalize("Tee-shirt Homme XL")
		assert.Equal(t, "tee shirt homme", got.Normalized)
	})

	t.Run("Idempotent", func(t *testing.T) {
		inputs := []string{
			"Jus d'Orange 1L",
			"Café   AU LAIT",
			"Chocolat Noir BIO sans sucre 100g",
			"Yaourt Nature Lot de 8",
			"",
			"   ",
			"!!! ???",
		}
		for _, in := range inputs {
			once := n.Normalize(in)
			twice := n.Normalize(once.Normalized)
			assert.Equal(t, once.Normalized, twice.Normalized, "input %q", in)
		}
	})

	t.Run("Degenerate input never fails", func(t *testing.T) {
		assert.Equal(t, "", n.Normalize("").Normalized)
		assert.Equal(t, "", n.Normalize("   \t  ").Normalized)
		assert.Empty(t, n.Normalize("").Tokens)
	})

	t.Run("Tokens are unique and ordered", func(t *testing.T) {
		got := n.Normalize("Tomate tomate TOMATE cerise")
		assert.Equal(t, []string{"tomate", "cerise"}, got.Tokens)
	})

	t.Run("Expands ligatures", func(t *testing.T) {
		got := n.Normalize("Œufs frais")
		assert.Equal(t, "oeufs frais", got.Normalized)
	})
}
