// Package groundtruth decides whether two records truly refer to the same entity or relationship
// using identifiers held in the source data, and counts the true links a dataset contains.
package groundtruth

import (
	"strings"

	"github.com/Ramsey-B/clover/pkg/records"
)

type Status int

const (
	NotTrueMatch Status = iota
	TrueMatch
	// Unknown means the records lack the identifiers needed to decide.
	Unknown
)

func (s Status) String() string {
	switch s {
	case TrueMatch:
		return "TRUE_MATCH"
	case Unknown:
		return "UNKNOWN"
	default:
		return "NOT_TRUE_MATCH"
	}
}

// Oracle classifies a record pair against ground truth.
type Oracle interface {
	IsTrueMatch(a, b records.Record) Status
}

type OracleFunc func(a, b records.Record) Status

func (f OracleFunc) IsTrueMatch(a, b records.Record) Status {
	return f(a, b)
}

// FieldPair names a ground truth field of the first record and the field of the second record it
// must equal.
type FieldPair struct {
	First  records.FieldID
	Second records.FieldID
}

// FieldPairs is an oracle over alternative sets of identifier field pairs. A pair of records is a
// true match when every field pair of any one alternative holds equal non-empty values.
type FieldPairs struct {
	Alternatives [][]FieldPair
	// AnyAbsentUnknown reports Unknown when any ground truth field is empty instead of only when
	// all of them are.
	AnyAbsentUnknown bool
}

func (f FieldPairs) IsTrueMatch(a, b records.Record) Status {
	for _, alt := range f.Alternatives {
		if len(alt) == 0 {
			continue
		}
		match := true
		for _, p := range alt {
			if !equalNonEmpty(value(a, p.First), value(b, p.Second)) {
				match = false
				break
			}
		}
		if match {
			return TrueMatch
		}
	}

	if f.allEmpty(a, b) || (f.AnyAbsentUnknown && f.anyEmpty(a, b)) {
		return Unknown
	}
	return NotTrueMatch
}

func (f FieldPairs) allEmpty(a, b records.Record) bool {
	for _, alt := range f.Alternatives {
		for _, p := range alt {
			if value(a, p.First) != "" || value(b, p.Second) != "" {
				return false
			}
		}
	}
	return true
}

func (f FieldPairs) anyEmpty(a, b records.Record) bool {
	for _, alt := range f.Alternatives {
		for _, p := range alt {
			if value(a, p.First) == "" || value(b, p.Second) == "" {
				return true
			}
		}
	}
	return false
}

func value(r records.Record, id records.FieldID) string {
	v, _ := r.Field(id)
	return strings.TrimSpace(v)
}

func equalNonEmpty(a, b string) bool {
	return a != "" && a == b
}

// FamilyKey joins the father and mother identifiers of a record, or returns "" when both are empty.
func FamilyKey(r records.Record, fatherID, motherID records.FieldID) string {
	father, mother := value(r, fatherID), value(r, motherID)
	if father == "" && mother == "" {
		return ""
	}
	return father + "-" + mother
}

// SymmetricFamilyCount counts true sibling links within one collection: every family of n records
// contributes n(n-1)/2 links.
func SymmetricFamilyCount(rs []records.Record, fatherID, motherID records.FieldID) int {
	families := map[string]int{}
	for _, r := range rs {
		if key := FamilyKey(r, fatherID, motherID); key != "" {
			families[key]++
		}
	}

	total := 0
	for _, n := range families {
		total += n * (n - 1) / 2
	}
	return total
}

// AsymmetricCount counts true links between two collections joined on an identifier field.
func AsymmetricCount(stored, query []records.Record, storedKey, queryKey records.FieldID) int {
	byKey := map[string]int{}
	for _, r := range stored {
		if key := value(r, storedKey); key != "" {
			byKey[key]++
		}
	}

	total := 0
	for _, r := range query {
		if key := value(r, queryKey); key != "" {
			total += byKey[key]
		}
	}
	return total
}
