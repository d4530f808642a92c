package fuzzy

import (
	"sort"
	"strings"
)

// Scores are on a 0..100 scale. Ratio is the Indel-normalized similarity:
// 100 * (1 - indel(a, b) / (len(a) + len(b))), computed over runes.

func Ratio(a, b string) float64 {
	return ratioRunes([]rune(a), []rune(b))
}

func ratioRunes(a, b []rune) float64 {
	return normalizedSimilarity(indel(a, b), len(a)+len(b))
}

func normalizedSimilarity(dist, lensum int) float64 {
	if lensum == 0 {
		return 100
	}
	return 100 - 100*float64(dist)/float64(lensum)
}

func indel(a, b []rune) int {
	return len(a) + len(b) - 2*lcs(a, b)
}

func lcs(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) > len(a) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// PartialRatio is the best Ratio between the shorter string and any window of
// the longer one, including windows clipped at either end.
func PartialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 100
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	best := partialRatioRunes(ra, rb)
	if len(ra) == len(rb) && best < 100 {
		if alt := partialRatioRunes(rb, ra); alt > best {
			best = alt
		}
	}
	return best
}

func partialRatioRunes(needle, hay []rune) float64 {
	n, m := len(needle), len(hay)
	best := 0.0
	consider := func(window []rune) bool {
		if s := ratioRunes(needle, window); s > best {
			best = s
		}
		return best >= 100
	}
	for i := 1; i < n; i++ {
		if consider(hay[:i]) {
			return best
		}
	}
	for i := 0; i <= m-n; i++ {
		if consider(hay[i : i+n]) {
			return best
		}
	}
	for i := m - n + 1; i < m; i++ {
		if consider(hay[i:]) {
			return best
		}
	}
	return best
}

func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedJoin(strings.Fields(a)), sortedJoin(strings.Fields(b)))
}

// TokenSetRatio compares the shared tokens and the sorted leftovers of each
// side; word order and repeated words do not matter.
func TokenSetRatio(a, b string) float64 {
	return tokenSetRatio(tokenSet(a), tokenSet(b))
}

// PartialTokenSetRatio is 100 as soon as both sides share a token, else the
// PartialRatio of the sorted leftovers.
func PartialTokenSetRatio(a, b string) float64 {
	return partialTokenSetRatio(tokenSet(a), tokenSet(b))
}

func tokenSetRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	sect, ab, ba := splitSets(a, b)
	if len(sect) > 0 && (len(ab) == 0 || len(ba) == 0) {
		return 100
	}

	abJoined := strings.Join(ab, " ")
	baJoined := strings.Join(ba, " ")
	abLen := runeLen(abJoined)
	baLen := runeLen(baJoined)
	sectLen := runeLen(strings.Join(sect, " "))

	sep := 0
	if sectLen != 0 {
		sep = 1
	}
	sectABLen := sectLen + sep + abLen
	sectBALen := sectLen + sep + baLen

	result := normalizedSimilarity(indel([]rune(abJoined), []rune(baJoined)), sectABLen+sectBALen)
	if sectLen == 0 {
		return result
	}

	sectAB := normalizedSimilarity(sep+abLen, sectLen+sectABLen)
	sectBA := normalizedSimilarity(sep+baLen, sectLen+sectBALen)
	return max(result, sectAB, sectBA)
}

func partialTokenSetRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	sect, ab, ba := splitSets(a, b)
	if len(sect) > 0 {
		return 100
	}
	return PartialRatio(strings.Join(ab, " "), strings.Join(ba, " "))
}

// tokenSet returns the sorted distinct whitespace tokens of s.
func tokenSet(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	sort.Strings(fields)
	out := fields[:1]
	for _, f := range fields[1:] {
		if f != out[len(out)-1] {
			out = append(out, f)
		}
	}
	return out
}

// splitSets merges two sorted distinct token lists into the intersection and
// the two differences, all sorted.
func splitSets(a, b []string) (sect, ab, ba []string) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			sect = append(sect, a[i])
			i++
			j++
		case a[i] < b[j]:
			ab = append(ab, a[i])
			i++
		default:
			ba = append(ba, b[j])
			j++
		}
	}
	ab = append(ab, a[i:]...)
	ba = append(ba, b[j:]...)
	return sect, ab, ba
}

func sortedJoin(tokens []string) string {
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}

func runeLen(s string) int {
	return len([]rune(s))
}
