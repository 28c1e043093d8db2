package bibtex

// maxCorrection is the smallest distance at which a misspelled type is no
// longer corrected and becomes unknown.
const maxCorrection = 3

// Distance returns the Levenshtein edit distance between a and b, comparing
// runes case-sensitively.
func Distance(a, b string) int {
	s, t := []rune(a), []rune(b)
	if len(s) == 0 {
		return len(t)
	}
	if len(t) == 0 {
		return len(s)
	}

	dp := make([][]int, len(s)+1)
	for i := range dp {
		dp[i] = make([]int, len(t)+1)
		dp[i][0] = i
	}
	for j := range dp[0] {
		dp[0][j] = j
	}

	for i := 1; i <= len(s); i++ {
		for j := 1; j <= len(t); j++ {
			cost := 1
			if s[i-1] == t[j-1] {
				cost = 0
			}
			dp[i][j] = min(dp[i-1][j]+1, dp[i][j-1]+1, dp[i-1][j-1]+cost)
		}
	}
	return dp[len(s)][len(t)]
}

// ClosestType maps typ onto the known entry types. Known types and unknown
// map to themselves. Otherwise the nearest type wins, the earliest in
// canonical order on ties, and anything 3 or more edits away is unknown.
func ClosestType(typ string) string {
	if typ == TypeUnknown || IsEntryType(typ) {
		return typ
	}
	best, bestDist := TypeUnknown, maxCorrection
	for _, candidate := range entryTypes {
		if d := Distance(typ, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}
