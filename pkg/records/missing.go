package records

import "strings"

// IsMissing reports whether a field value counts as absent. The vocabulary is fixed: empty
// values, anything mentioning "missing", and the "--" / "----" placeholders, compared after
// lower-casing and trimming.
func IsMissing(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	return v == "" || strings.Contains(v, "missing") || v == "--" || v == "----"
}

// Value returns a field value and whether it is present under the missing-value vocabulary.
func Value(r Record, id FieldID) (string, bool) {
	v, ok := r.Field(id)
	if !ok || IsMissing(v) {
		return v, false
	}
	return v, true
}

// PopulatedCount counts the fields of r that are present.
func PopulatedCount(r Record, fields []FieldID) int {
	n := 0
	for _, f := range fields {
		if _, ok := Value(r, f); ok {
			n++
		}
	}
	return n
}

// PassesFilter reports whether r has at least required populated fields among fields.
func PassesFilter(r Record, fields []FieldID, required int) bool {
	return PopulatedCount(r, fields) >= required
}

// Filter keeps the records that pass PassesFilter, stopping once limit records are kept.
// A limit of zero or less keeps everything.
func Filter(rs []Record, fields []FieldID, required, limit int) (kept []Record, rejected int) {
	for _, r := range rs {
		if limit > 0 && len(kept) >= limit {
			break
		}
		if PassesFilter(r, fields, required) {
			kept = append(kept, r)
		} else {
			rejected++
		}
	}
	return kept, rejected
}

// JointlyPopulated counts aligned field pairs present in both records.
func JointlyPopulated(a Record, fieldsA []FieldID, b Record, fieldsB []FieldID) int {
	n := 0
	for i := range fieldsA {
		if i >= len(fieldsB) {
			break
		}
		_, okA := Value(a, fieldsA[i])
		_, okB := Value(b, fieldsB[i])
		if okA && okB {
			n++
		}
	}
	return n
}
