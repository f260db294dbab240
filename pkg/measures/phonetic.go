package measures

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Soundex is 0 when both values share a Soundex code and 1 otherwise.
type Soundex struct{}

func (Soundex) Name() string     { return "soundex" }
func (Soundex) Normalised() bool { return true }

func (Soundex) Distance(a, b string) (float64, error) {
	if soundexCode(a) == soundexCode(b) {
		return 0, nil
	}
	return 1, nil
}

// soundexCode returns the four character Soundex encoding, or "" for values without letters.
func soundexCode(str string) string {
	var letters []rune
	for _, r := range strings.ToUpper(str) {
		if unicode.IsLetter(r) {
			letters = append(letters, r)
		}
	}
	if len(letters) == 0 {
		return ""
	}

	result := []rune{letters[0]}
	prevCode := soundexDigit(letters[0])

	for _, char := range letters[1:] {
		if len(result) == 4 {
			break
		}
		code := soundexDigit(char)
		if code != '0' && code != prevCode {
			result = append(result, code)
		}
		// H and W do not separate letters with the same code
		if char != 'H' && char != 'W' {
			prevCode = code
		}
	}

	for len(result) < 4 {
		result = append(result, '0')
	}

	return string(result)
}

func soundexDigit(char rune) rune {
	switch char {
	case 'B', 'F', 'P', 'V':
		return '1'
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return '2'
	case 'D', 'T':
		return '3'
	case 'L':
		return '4'
	case 'M', 'N':
		return '5'
	case 'R':
		return '6'
	default:
		return '0'
	}
}

// DoubleMetaphone is 0 when any primary or alternate encoding of the two values agree, 1 otherwise.
type DoubleMetaphone struct{}

func (DoubleMetaphone) Name() string     { return "double_metaphone" }
func (DoubleMetaphone) Normalised() bool { return true }

func (DoubleMetaphone) Distance(a, b string) (float64, error) {
	if a == b {
		return 0, nil
	}

	a1, a2 := matchr.DoubleMetaphone(a)
	b1, b2 := matchr.DoubleMetaphone(b)

	for _, x := range []string{a1, a2} {
		if x == "" {
			continue
		}
		if x == b1 || x == b2 {
			return 0, nil
		}
	}
	return 1, nil
}
