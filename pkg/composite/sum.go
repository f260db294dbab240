package composite

import (
	"fmt"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/measures"
	"github.com/Ramsey-B/clover/pkg/records"
)

// SumOfFields adds base distances over aligned field pairs. A missing field contributes
// missingDistance. The result is not normalised.
type SumOfFields struct {
	base            measures.StringMeasure
	fields1         []records.FieldID
	fields2         []records.FieldID
	missingDistance float64
}

func NewSum(base measures.StringMeasure, fields1, fields2 []records.FieldID, missingDistance float64) (*SumOfFields, error) {
	if base == nil {
		return nil, errors.NewConfigError("composite", "base measure is required").AddSetting("measure")
	}
	if fields2 == nil {
		fields2 = fields1
	}
	if len(fields1) == 0 || len(fields1) != len(fields2) {
		return nil, errors.NewConfigErrorf("composite", "invalid field lists of length %d and %d", len(fields1), len(fields2)).AddSetting("fields")
	}
	if missingDistance < 0 {
		return nil, errors.NewConfigError("composite", "missing field distance must not be negative").AddSetting("max_distance")
	}

	return &SumOfFields{
		base:            base,
		fields1:         fields1,
		fields2:         fields2,
		missingDistance: missingDistance,
	}, nil
}

func (s *SumOfFields) Name() string {
	return fmt.Sprintf("sum(%s)", s.base.Name())
}

func (s *SumOfFields) IsMaxDistanceOne() bool {
	return false
}

func (s *SumOfFields) Distance(a, b records.Record) (float64, error) {
	var total float64
	for i, f1 := range s.fields1 {
		f2 := s.fields2[i]
		v1, ok1 := records.Value(a, f1)
		v2, ok2 := records.Value(b, f2)
		if !ok1 || !ok2 {
			total += s.missingDistance
			continue
		}

		d, err := s.base.Distance(v1, v2)
		if err != nil {
			return 0, errors.NewMeasureError(s.base.Name(), err).
				AddRecords(a.ID(), b.ID()).
				AddFields(a.FieldName(f1), b.FieldName(f2)).
				AddValues(v1, v2)
		}
		total += d
	}
	return total, nil
}

// NormaliseArbitraryPositiveDistance maps [0,inf) onto [0,1) preserving order.
func NormaliseArbitraryPositiveDistance(d float64) float64 {
	return d / (d + 1)
}

// Normalised wraps a measure so its distances fall in [0,1).
type Normalised struct {
	Measure
}

func (n Normalised) Name() string {
	return "normalised(" + n.Measure.Name() + ")"
}

func (n Normalised) IsMaxDistanceOne() bool {
	return true
}

func (n Normalised) Distance(a, b records.Record) (float64, error) {
	d, err := n.Measure.Distance(a, b)
	if err != nil {
		return 0, err
	}
	return NormaliseArbitraryPositiveDistance(d), nil
}
