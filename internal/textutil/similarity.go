package textutil

import (
	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/hbollon/go-edlib"
)

// Similarity computes a fuzzy similarity between two strings in 0..1. The
// inputs are normalized first, then scored with a blend of Jaro-Winkler
// (typo tolerance), Sørensen-Dice over bigrams (substring tolerance), and a
// token-sorted Jaro-Winkler pass (word reordering tolerance).
func Similarity(a, b string) float64 {
	na := Normalize(a)
	nb := Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	jw := metrics.NewJaroWinkler()
	dice := metrics.NewSorensenDice()
	dice.NgramSize = 2

	ratio := strutil.Similarity(na, nb, jw)
	partial := strutil.Similarity(na, nb, dice)
	tokenSort := strutil.Similarity(SortTokens(na), SortTokens(nb), jw)

	score := ratio*0.4 + partial*0.3 + tokenSort*0.3
	if score > 1 {
		score = 1
	}
	return score
}

// BestMatch finds the choice most similar to query, returning the original
// (unnormalized) choice and whether any candidate cleared minSim (0..1).
func BestMatch(query string, choices []string, minSim float64) (string, bool) {
	if query == "" || len(choices) == 0 {
		return "", false
	}
	normalized := make([]string, len(choices))
	byNormalized := make(map[string]string, len(choices))
	for i, choice := range choices {
		normalized[i] = Normalize(choice)
		if _, ok := byNormalized[normalized[i]]; !ok {
			byNormalized[normalized[i]] = choice
		}
	}
	match, err := edlib.FuzzySearchThreshold(Normalize(query), normalized, float32(minSim), edlib.JaroWinkler)
	if err != nil || match == "" {
		return "", false
	}
	original, ok := byNormalized[match]
	return original, ok
}
