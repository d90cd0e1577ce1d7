package taxonomy

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/adrg/strutil/metrics"
)

// indel is an insertion/deletion-only edit distance: a substitution costs a
// delete plus an insert.
var indel = &metrics.Levenshtein{
	CaseSensitive: true,
	InsertCost:    1,
	DeleteCost:    1,
	ReplaceCost:   2,
}

// ratio is the normalized indel similarity of a and b in [0, 1].
func ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	return 1 - float64(indel.Distance(a, b))/float64(total)
}

// partialRatio is the best ratio of the shorter string against every
// equally long window of the longer one.
func partialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}

	s := string(short)
	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		if r := ratio(s, string(long[i:i+len(short)])); r > best {
			best = r
			if best == 1 {
				break
			}
		}
	}
	return best
}

func tokenSortRatio(a, b string) float64 {
	return ratio(sortedTokens(a), sortedTokens(b))
}

// tokenSetRatio compares the shared tokens of a and b with each side's
// shared-plus-unique tokens, so word order and extra words matter less.
func tokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)

	var sect, onlyA, onlyB []string
	for w := range ta {
		if tb[w] {
			sect = append(sect, w)
		} else {
			onlyA = append(onlyA, w)
		}
	}
	for w := range tb {
		if !ta[w] {
			onlyB = append(onlyB, w)
		}
	}
	sort.Strings(sect)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	if len(sect) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 1
	}

	s := strings.Join(sect, " ")
	ca := strings.TrimSpace(s + " " + strings.Join(onlyA, " "))
	cb := strings.TrimSpace(s + " " + strings.Join(onlyB, " "))

	best := ratio(ca, cb)
	if s != "" {
		best = max(best, ratio(s, ca), ratio(s, cb))
	}
	return best
}

// weightedRatio blends plain, partial and token-based similarity the way
// general-purpose fuzzy matchers do: token scores are slightly discounted and
// partial matches are discounted further the more the lengths differ.
func weightedRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	lenRatio := float64(max(la, lb)) / float64(min(la, lb))

	base := ratio(a, b)
	tokens := max(tokenSortRatio(a, b), tokenSetRatio(a, b))
	if lenRatio < 1.5 {
		return max(base, tokens*0.95)
	}

	scale := 0.9
	if lenRatio >= 8 {
		scale = 0.6
	}
	return max(base, partialRatio(a, b)*scale, tokens*0.95*scale)
}

// bestMatch returns the choice most similar to query. choices must be in a
// stable order; the first of equally scored choices wins.
func bestMatch(query string, choices []string) (string, float64) {
	best, bestScore := "", 0.0
	for _, c := range choices {
		if score := weightedRatio(query, c); score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}
