package domain

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizedTitle is the canonical form of a raw article title. It is the
// lookup key for both the retrieval cache and the hierarchy index, so two
// titles a human would consider the same article name must normalize
// identically.
type NormalizedTitle struct {
	Raw        string
	Normalized string
	Tokens     []string
}

// Packaging and quantity noise that never discriminates between
// sous-familles: "lot de 6", "x12", "6x33cl", "1l", "pack", clothing sizes.
var genericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(lot\s*de|pack|flacon|boite|sachet|bouteille|canette|lot)\b`),
	regexp.MustCompile(`\bx\s*\d+\b`),
	regexp.MustCompile(`\b\d+\s*x\s*\d+\s*(cl|ml|l|g|kg)\b`),
	regexp.MustCompile(`\b\d+\s*(cl|ml|l|g|kg)\b`),
	regexp.MustCompile(`\b(sachet|paquet|carton)\b`),
	regexp.MustCompile(`\b(xxxxl|xxxl|xxl|xl|xs|s|m|l)\b`),
}

// Discriminating terms that would otherwise be eaten by the generic
// patterns ("sans sucre" overlaps the unit stripper's neighborhood).
var whitelistTerms = []string{
	"bio",
	"halal",
	"sans sucre",
	"sans sel",
	"sans gluten",
	"vegan",
	"vegetarien",
	"epautre",
}

var punctuation = regexp.MustCompile(`[\p{P}\p{S}]+`)

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// TitleNormalizer canonicalizes raw article titles. It is a pure policy:
// deterministic, idempotent, and total (malformed input degrades to an
// empty normalized string, never an error).
type TitleNormalizer struct {
	whitelist []*regexp.Regexp
}

// NewTitleNormalizer precompiles the whitelist protection patterns.
func NewTitleNormalizer() *TitleNormalizer {
	patterns := make([]*regexp.Regexp, 0, len(whitelistTerms))
	for _, term := range whitelistTerms {
		escaped := strings.ReplaceAll(regexp.QuoteMeta(term), ` `, `\s+`)
		patterns = append(patterns, regexp.MustCompile(`\b`+escaped+`\b`))
	}
	return &TitleNormalizer{whitelist: patterns}
}

// Normalize folds case, strips diacritics and punctuation, removes packaging
// noise, and collapses whitespace. Single-character leftovers (French
// elision "d", "l") are dropped so "jus d'orange" and "jus orange"
// normalize identically.
func (n *TitleNormalizer) Normalize(raw string) NormalizedTitle {
	s := stripDiacritics(strings.ToLower(raw))
	s = punctuation.ReplaceAllString(s, " ")

	// Tag whitelist terms with underscores so the generic patterns cannot
	// split or remove them.
	for _, re := range n.whitelist {
		s = re.ReplaceAllStringFunc(s, func(m string) string {
			return strings.Join(strings.Fields(m), "_")
		})
	}

	for _, re := range genericPatterns {
		s = re.ReplaceAllString(s, " ")
	}

	s = strings.ReplaceAll(s, "_", " ")

	fields := strings.Fields(s)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 1 {
			continue
		}
		kept = append(kept, f)
	}

	normalized := strings.Join(kept, " ")

	seen := make(map[string]struct{}, len(kept))
	tokens := make([]string, 0, len(kept))
	for _, f := range kept {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}

	return NormalizedTitle{Raw: raw, Normalized: normalized, Tokens: tokens}
}

func stripDiacritics(s string) string {
	out, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		out = s
	}
	out = strings.ReplaceAll(out, "œ", "oe")
	out = strings.ReplaceAll(out, "æ", "ae")
	return out
}
