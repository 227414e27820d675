package reconcile

import (
	"slices"
	"strings"
)

// Rule identifies which reconciliation rule decided a fragment.
type Rule int

// Rules in evaluation order for final fragments. RuleEmpty and RuleInterim
// are bookkeeping outcomes outside the ordered list.
const (
	RuleEmpty Rule = iota
	RuleInterim
	RuleDebounce
	RuleTailOverlap
	RuleContainment
	RuleInteriorOverlap
	RuleAppend
)

var ruleNames = [...]string{
	RuleEmpty:           "empty",
	RuleInterim:         "interim",
	RuleDebounce:        "debounce",
	RuleTailOverlap:     "tail_overlap",
	RuleContainment:     "containment",
	RuleInteriorOverlap: "interior_overlap",
	RuleAppend:          "append",
}

func (r Rule) String() string {
	if r < 0 || int(r) >= len(ruleNames) {
		return "unknown"
	}
	return ruleNames[r]
}

// Rules lists every rule, for metrics and reporting.
var Rules = []Rule{RuleEmpty, RuleInterim, RuleDebounce, RuleTailOverlap, RuleContainment, RuleInteriorOverlap, RuleAppend}

// TailOverlap returns the largest k >= 1 such that the last k words of
// transcript equal the first k words of fragment, or 0 when there is none.
// Words are compared in normalized form.
func TailOverlap(transcript, fragment []string) int {
	for k := min(len(transcript), len(fragment)); k >= 1; k-- {
		if slices.Equal(transcript[len(transcript)-k:], fragment[:k]) {
			return k
		}
	}
	return 0
}

// Contains reports whether fragment occurs as a contiguous, word-aligned run
// inside transcript.
func Contains(transcript, fragment []string) bool {
	if len(fragment) == 0 {
		return true
	}
	t := " " + strings.Join(transcript, " ") + " "
	return strings.Contains(t, " "+strings.Join(fragment, " ")+" ")
}

// InteriorOverlap finds the longest contiguous run of fragment words, at
// least minRun long, that also appears contiguously anywhere in transcript.
// It returns the index in fragment just past that run, or 0 when no run is
// long enough. Ties go to the run ending latest in fragment.
func InteriorOverlap(transcript, fragment []string, minRun int) int {
	if minRun < 1 {
		minRun = 1
	}
	bestLen, bestEnd := 0, 0
	// prev[j] holds the length of the common run ending at transcript[j-1]
	// and the previous fragment word.
	prev := make([]int, len(transcript)+1)
	cur := make([]int, len(transcript)+1)
	for i := 1; i <= len(fragment); i++ {
		for j := 1; j <= len(transcript); j++ {
			if fragment[i-1] == transcript[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = 0
			}
			if cur[j] >= minRun && (cur[j] > bestLen || (cur[j] == bestLen && i > bestEnd)) {
				bestLen, bestEnd = cur[j], i
			}
		}
		prev, cur = cur, prev
	}
	return bestEnd
}
