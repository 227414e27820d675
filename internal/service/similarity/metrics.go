package similarity

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Substring match credits.
const (
	exactCredit    = 1.0
	containsCredit = 0.7
	stemCredit     = 0.5
	stemLength     = 3
)

// Jaccard returns |A ∩ B| / |A ∪ B| over the distinct words of a and b.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, w := range a {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, w := range b {
		setB[w] = struct{}{}
	}
	var inter int
	for w := range setA {
		if _, ok := setB[w]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// LCSRatio returns the length of the longest common word subsequence divided
// by the longer word count.
func LCSRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return float64(prev[len(b)]) / float64(max(len(a), len(b)))
}

// EditSimilarity returns 1 - levenshtein(a, b) / max(len(a), len(b)),
// measured in runes over whole normalized strings.
func EditSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

// SubstringMatch greedily pairs each target word with an unused attempt
// word: an exact match earns 1.0, one word containing the other 0.7, and a
// shared three-letter stem 0.5. The summed credit is divided by the longer
// word count.
func SubstringMatch(attempt, target []string) float64 {
	if len(attempt) == 0 || len(target) == 0 {
		return 0
	}
	used := make([]bool, len(attempt))
	tiers := []struct {
		credit float64
		match  func(a, t string) bool
	}{
		{exactCredit, func(a, t string) bool { return a == t }},
		{containsCredit, func(a, t string) bool {
			return runeLen(a) >= stemLength && runeLen(t) >= stemLength &&
				(strings.Contains(a, t) || strings.Contains(t, a))
		}},
		{stemCredit, func(a, t string) bool {
			return runeLen(a) >= stemLength && runeLen(t) >= stemLength && stem(a) == stem(t)
		}},
	}

	var total float64
	for _, t := range target {
	tiers:
		for _, tier := range tiers {
			for i, a := range attempt {
				if !used[i] && tier.match(a, t) {
					used[i] = true
					total += tier.credit
					break tiers
				}
			}
		}
	}
	return total / float64(max(len(attempt), len(target)))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func stem(s string) string {
	return string([]rune(s)[:stemLength])
}
