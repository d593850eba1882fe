// Package similarity scores how likely two annotation texts denote the same
// annotation after an edit.
package similarity

import (
	"strings"
	"unicode/utf8"
)

// Weights of the two blended signals.
const (
	EditWeight  = 0.6
	TokenWeight = 0.4

	// ContainmentFloor is the minimum score when one text contains the other.
	ContainmentFloor = 0.8
)

// Score returns a confidence in [0,1] that a and b are the same annotation.
// It is symmetric and Score(x, x) == 1.
func Score(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)

	// 1. Exact match after normalization
	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0
	}

	// 2. Containment: text appended to or trimmed from
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		la, lb := utf8.RuneCountInString(na), utf8.RuneCountInString(nb)
		shorter, longer := min(la, lb), max(la, lb)
		return max(ContainmentFloor, float64(shorter)/float64(longer))
	}

	// 3. Blend of edit distance and word overlap
	return EditWeight*EditSimilarity(na, nb) + TokenWeight*Jaccard(na, nb)
}

// Normalize lower-cases, trims and collapses whitespace runs to one space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// EditSimilarity converts the Levenshtein distance into a [0,1] similarity.
func EditSimilarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 0
	}
	return float64(maxLen-Levenshtein(a, b)) / float64(maxLen)
}

// Levenshtein returns the single-rune insert/delete/substitute edit distance.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// Jaccard returns |A∩B| / |A∪B| over the distinct space-separated words of a and b.
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	union := len(setA)
	intersection := 0
	for tok := range setB {
		if _, ok := setA[tok]; ok {
			intersection++
		} else {
			union++
		}
	}

	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}
