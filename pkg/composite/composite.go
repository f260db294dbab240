// Package composite combines field-level string measures into record-level distances.
package composite

import (
	"fmt"
	"math"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/measures"
	"github.com/Ramsey-B/clover/pkg/records"
)

// Policy decides how a field pair with a missing value contributes to the distance.
type Policy string

const (
	// ZeroForMissing counts missing fields as distance 0 but still divides over every field.
	ZeroForMissing Policy = "zero_for_missing"
	// MaxForMissing counts missing fields as the configured maximum distance.
	MaxForMissing Policy = "max_for_missing"
	// SkipMissingMean averages over fields present in both records only.
	SkipMissingMean Policy = "skip_missing_mean"
	// SkipMissingTolerant returns 0 as soon as any compared field is missing.
	SkipMissingTolerant Policy = "skip_missing_tolerant"
)

// Policies lists every supported policy.
var Policies = []Policy{ZeroForMissing, MaxForMissing, SkipMissingMean, SkipMissingTolerant}

func ParsePolicy(s string) (Policy, error) {
	for _, p := range Policies {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown missing field policy '%s'", s)
}

// Measure is a record-level distance.
type Measure interface {
	Name() string
	Distance(a, b records.Record) (float64, error)
	IsMaxDistanceOne() bool
}

// MaximalDistance is returned by SkipMissingMean when no field can be compared and the base measure
// is not normalised.
const MaximalDistance = math.MaxFloat64

// Config holds the parameters of a MeanOfFields measure.
type Config struct {
	Base    measures.StringMeasure
	Fields1 []records.FieldID
	Fields2 []records.FieldID // defaults to Fields1
	Policy  Policy
	// MaxDistance is the contribution of a missing field under MaxForMissing.
	MaxDistance float64
}

// MeanOfFields averages base distances over aligned field pairs under a missing-field policy.
type MeanOfFields struct {
	base        measures.StringMeasure
	fields1     []records.FieldID
	fields2     []records.FieldID
	policy      Policy
	maxDistance float64
}

// New validates cfg and builds the measure. Invalid combinations are configuration errors.
func New(cfg Config) (*MeanOfFields, error) {
	if cfg.Base == nil {
		return nil, errors.NewConfigError("composite", "base measure is required").AddSetting("measure")
	}
	if len(cfg.Fields1) == 0 {
		return nil, errors.NewConfigError("composite", "at least one linkage field is required").AddSetting("fields")
	}

	fields2 := cfg.Fields2
	if fields2 == nil {
		fields2 = cfg.Fields1
	}
	if len(fields2) != len(cfg.Fields1) {
		return nil, errors.NewConfigErrorf("composite", "field lists differ in length: %d and %d", len(cfg.Fields1), len(fields2)).AddSetting("fields")
	}

	policy := cfg.Policy
	if policy == "" {
		policy = SkipMissingMean
	}
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, errors.NewConfigErrorf("composite", "%w", err).AddSetting("policy")
	}

	maxDistance := cfg.MaxDistance
	if policy == MaxForMissing {
		if cfg.Base.Normalised() && maxDistance == 0 {
			maxDistance = 1
		}
		if cfg.Base.Normalised() && maxDistance != 1 {
			return nil, errors.NewConfigErrorf("composite", "max distance %v breaks the [0,1] contract of %s", maxDistance, cfg.Base.Name()).AddSetting("max_distance")
		}
		if maxDistance <= 0 {
			return nil, errors.NewConfigError("composite", "max distance must be positive").AddSetting("max_distance")
		}
	}

	return &MeanOfFields{
		base:        cfg.Base,
		fields1:     append([]records.FieldID(nil), cfg.Fields1...),
		fields2:     append([]records.FieldID(nil), fields2...),
		policy:      policy,
		maxDistance: maxDistance,
	}, nil
}

func (m *MeanOfFields) Name() string {
	return fmt.Sprintf("%s(%s)", m.policy, m.base.Name())
}

func (m *MeanOfFields) IsMaxDistanceOne() bool {
	return m.base.Normalised()
}

func (m *MeanOfFields) Policy() Policy {
	return m.policy
}

func (m *MeanOfFields) Fields() ([]records.FieldID, []records.FieldID) {
	return m.fields1, m.fields2
}

func (m *MeanOfFields) Distance(a, b records.Record) (float64, error) {
	var total float64
	present := 0

	for i, f1 := range m.fields1 {
		f2 := m.fields2[i]
		v1, ok1 := records.Value(a, f1)
		v2, ok2 := records.Value(b, f2)

		if !ok1 || !ok2 {
			switch m.policy {
			case SkipMissingTolerant:
				return 0, nil
			case MaxForMissing:
				total += m.maxDistance
			}
			continue
		}

		d, err := m.base.Distance(v1, v2)
		if err != nil {
			return 0, errors.NewMeasureError(m.base.Name(), err).
				AddRecords(a.ID(), b.ID()).
				AddFields(a.FieldName(f1), b.FieldName(f2)).
				AddValues(v1, v2)
		}
		total += d
		present++
	}

	if m.policy == SkipMissingMean {
		if present == 0 {
			return m.sentinel(), nil
		}
		return total / float64(present), nil
	}
	return total / float64(len(m.fields1)), nil
}

func (m *MeanOfFields) sentinel() float64 {
	if m.base.Normalised() {
		return 1
	}
	return MaximalDistance
}
