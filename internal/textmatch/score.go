package textmatch

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	// RelevanceThreshold is the minimum score for a title to count as a match
	RelevanceThreshold = 60

	fullCoverageBonus = 10
	maxScore          = 100
)

// Score rates how well title matches searchTerm on a 0..100 scale.
//
// Half of the score comes from the character-level similarity of the two
// normalized strings, the other half from the share of search words present
// in the title. Titles containing every search word get a bonus.
func Score(searchTerm, title string) (int, bool) {
	search := Normalize(searchTerm)
	candidate := Normalize(title)
	if search == "" || candidate == "" {
		return 0, false
	}

	searchWords := wordSet(search)
	if len(searchWords) == 0 {
		return 0, false
	}
	titleWords := wordSet(candidate)

	common := 0
	for w := range searchWords {
		if _, ok := titleWords[w]; ok {
			common++
		}
	}
	wordMatchRatio := float64(common) / float64(len(searchWords))

	similarity := Similarity(search, candidate)
	total := int(similarity*50 + wordMatchRatio*50)

	if wordMatchRatio == 1.0 {
		total = min(total+fullCoverageBonus, maxScore)
	}

	return total, total >= RelevanceThreshold
}

// Similarity returns the longest-matching-blocks ratio of a and b in [0, 1]
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(runes(a), runes(b)).Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
