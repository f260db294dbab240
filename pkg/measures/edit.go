package measures

import (
	"fmt"

	"github.com/antzucaro/matchr"
)

// Levenshtein is the raw edit distance. It is a metric but is not normalised.
type Levenshtein struct{}

func (Levenshtein) Name() string     { return "levenshtein" }
func (Levenshtein) Normalised() bool { return false }

func (Levenshtein) Distance(a, b string) (float64, error) {
	return float64(levenshteinDistance([]rune(a), []rune(b))), nil
}

// NormalisedLevenshtein divides the edit distance by the longer length.
type NormalisedLevenshtein struct{}

func (NormalisedLevenshtein) Name() string     { return "normalised_levenshtein" }
func (NormalisedLevenshtein) Normalised() bool { return true }

func (NormalisedLevenshtein) Distance(a, b string) (float64, error) {
	ra, rb := []rune(a), []rune(b)
	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 0, nil
	}
	return float64(levenshteinDistance(ra, rb)) / float64(maxLen), nil
}

// levenshteinDistance calculates the edit distance using two dynamic programming rows
func levenshteinDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(row[j-1]+1, prevRow[j]+1, prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// DamerauLevenshtein is the edit distance allowing adjacent transpositions.
type DamerauLevenshtein struct{}

func (DamerauLevenshtein) Name() string     { return "damerau_levenshtein" }
func (DamerauLevenshtein) Normalised() bool { return false }

func (DamerauLevenshtein) Distance(a, b string) (float64, error) {
	return float64(matchr.DamerauLevenshtein(a, b)), nil
}

// Hamming counts differing positions. Values of different lengths cannot be compared.
type Hamming struct{}

func (Hamming) Name() string     { return "hamming" }
func (Hamming) Normalised() bool { return false }

func (Hamming) Distance(a, b string) (float64, error) {
	d, err := matchr.Hamming(a, b)
	if err != nil {
		return 0, fmt.Errorf("hamming distance undefined for lengths %d and %d: %w", len([]rune(a)), len([]rune(b)), err)
	}
	return float64(d), nil
}

// LongestCommonSubsequence is 1 - 2*lcs/(len(a)+len(b)).
type LongestCommonSubsequence struct{}

func (LongestCommonSubsequence) Name() string     { return "lcs" }
func (LongestCommonSubsequence) Normalised() bool { return true }

func (LongestCommonSubsequence) Distance(a, b string) (float64, error) {
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 0, nil
	}
	lcs := matchr.LongestCommonSubsequence(a, b)
	return 1 - 2*float64(lcs)/float64(total), nil
}
