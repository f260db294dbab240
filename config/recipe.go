package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/Gobusters/ectologger"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/clover/pkg/composite"
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/groundtruth"
	"github.com/Ramsey-B/clover/pkg/linkage"
	"github.com/Ramsey-B/clover/pkg/measures"
	"github.com/Ramsey-B/clover/pkg/records"
	"github.com/Ramsey-B/clover/pkg/resolver"
	"github.com/Ramsey-B/clover/pkg/search"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// Recipe is a YAML linkage definition.
type Recipe struct {
	Name       string `yaml:"name" validate:"required"`
	LinkType   string `yaml:"link_type" validate:"required"`
	StoredRole string `yaml:"stored_role" validate:"required"`
	QueryRole  string `yaml:"query_role"`
	Symmetric  bool   `yaml:"symmetric"`

	Stored RecordType  `yaml:"stored" validate:"required"`
	Query  *RecordType `yaml:"query"`

	LinkageFields  FieldLists `yaml:"linkage_fields" validate:"required"`
	RequiredFields int        `yaml:"required_fields" validate:"gte=0"`
	Limit          int        `yaml:"limit" validate:"gte=0"`

	Measure   MeasureSpec `yaml:"measure"`
	Threshold float64     `yaml:"threshold" validate:"gte=0"`
	Strategy  string      `yaml:"strategy" validate:"omitempty,oneof=exhaustive search"`
	Search    SearchSpec  `yaml:"search"`

	GroundTruth *GroundTruthSpec `yaml:"ground_truth"`
	Resolver    ResolverSpec     `yaml:"resolver"`
}

// RecordType names a record type and its fields in table column order.
type RecordType struct {
	Type   string   `yaml:"type" validate:"required"`
	Fields []string `yaml:"fields" validate:"required,min=1"`
}

func (r RecordType) Schema() *records.Schema {
	return records.NewSchema(r.Type, r.Fields...)
}

type FieldLists struct {
	Stored []string `yaml:"stored" validate:"required,min=1"`
	Query  []string `yaml:"query"`
}

type MeasureSpec struct {
	Base        string  `yaml:"base"`
	Composite   string  `yaml:"composite" validate:"omitempty,oneof=mean sum"`
	Policy      string  `yaml:"policy"`
	MaxDistance float64 `yaml:"max_distance" validate:"gte=0"`
	// MissingDistance is the per-field contribution of a missing value to a sum.
	MissingDistance float64 `yaml:"missing_distance" validate:"gte=0"`
}

type SearchSpec struct {
	Backend      string `yaml:"backend" validate:"omitempty,oneof=mtree pivot linear"`
	Query        string `yaml:"query" validate:"omitempty,oneof=range knn"`
	K            int    `yaml:"k" validate:"gte=0"`
	NodeCapacity int    `yaml:"node_capacity" validate:"gte=0"`
	Pivots       int    `yaml:"pivots" validate:"gte=0"`
	Seed         int64  `yaml:"seed"`
}

type GroundTruthSpec struct {
	Alternatives     [][]FieldPairSpec `yaml:"alternatives" validate:"required,min=1"`
	AnyAbsentUnknown bool              `yaml:"any_absent_unknown"`
	Family           *FamilySpec       `yaml:"family"`
	Key              *FieldPairSpec    `yaml:"key"`
}

type FieldPairSpec struct {
	Stored string `yaml:"stored" validate:"required"`
	Query  string `yaml:"query"`
}

type FamilySpec struct {
	Father string `yaml:"father" validate:"required"`
	Mother string `yaml:"mother" validate:"required"`
}

type ResolverSpec struct {
	LinkType         string                `yaml:"link_type"`
	Pattern          string                `yaml:"pattern" validate:"omitempty,oneof=open all"`
	SupportThreshold *int                  `yaml:"support_threshold"`
	MinClusterSize   *int                  `yaml:"min_cluster_size"`
	LDRT             *float64              `yaml:"ldrt"`
	HDRT             *float64              `yaml:"hdrt"`
	Hierarchical     *bool                 `yaml:"hierarchical"`
	TwoTriangles     *bool                 `yaml:"two_triangles"`
	Sweep            *resolver.SweepRanges `yaml:"sweep"`
}

// LoadRecipe reads and validates a recipe file.
func LoadRecipe(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe %s: %w", path, err)
	}
	return ParseRecipe(data)
}

// ParseRecipe decodes and validates a YAML recipe. Unknown keys are rejected.
func ParseRecipe(data []byte) (*Recipe, error) {
	var r Recipe
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return nil, errors.NewConfigErrorf("recipe", "failed to decode recipe: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Recipe) validate() error {
	if _, err := utils.Validate(*r); err != nil {
		return errors.NewConfigErrorf("recipe", "%w", err)
	}
	if !r.Symmetric && r.Query == nil {
		return errors.NewConfigError("recipe", "asymmetric recipes need a query record type").AddSetting("query")
	}
	if len(r.LinkageFields.Query) != 0 && len(r.LinkageFields.Query) != len(r.LinkageFields.Stored) {
		return errors.NewConfigError("recipe", "linkage field lists differ in length").AddSetting("linkage_fields")
	}
	if _, _, err := r.FieldIDs(); err != nil {
		return err
	}
	if r.Strategy == string(linkage.SearchAssisted) && r.Search.Query == string(linkage.QueryKNearest) && r.Search.K < 1 {
		return errors.NewConfigError("recipe", "knn queries need k >= 1").AddSetting("search.k")
	}
	return nil
}

// Schemas returns the stored and query record schemas. Symmetric recipes use the stored schema twice.
func (r *Recipe) Schemas() (stored, query *records.Schema) {
	stored = r.Stored.Schema()
	if r.Symmetric || r.Query == nil {
		return stored, stored
	}
	return stored, r.Query.Schema()
}

// FieldIDs resolves the linkage field names against both schemas.
func (r *Recipe) FieldIDs() (stored, query []records.FieldID, err error) {
	storedSchema, querySchema := r.Schemas()
	stored, err = storedSchema.FieldIDs(r.LinkageFields.Stored...)
	if err != nil {
		return nil, nil, errors.NewConfigErrorf("recipe", "%w", err).AddSetting("linkage_fields.stored")
	}
	names := r.LinkageFields.Query
	if len(names) == 0 {
		names = r.LinkageFields.Stored
	}
	query, err = querySchema.FieldIDs(names...)
	if err != nil {
		return nil, nil, errors.NewConfigErrorf("recipe", "%w", err).AddSetting("linkage_fields.query")
	}
	return stored, query, nil
}

// MeasureFactory builds the record distance over aligned field lists.
func (r *Recipe) MeasureFactory() func(storedFields, queryFields []records.FieldID) (linkage.Metric, error) {
	return func(storedFields, queryFields []records.FieldID) (linkage.Metric, error) {
		name := r.Measure.Base
		if name == "" {
			name = "jensen_shannon"
		}
		base, err := measures.Lookup(name)
		if err != nil {
			return nil, errors.NewConfigErrorf("recipe", "%w", err).AddSetting("measure.base")
		}

		if r.Measure.Composite == "sum" {
			sum, err := composite.NewSum(base, storedFields, queryFields, r.Measure.MissingDistance)
			if err != nil {
				return nil, err
			}
			return composite.Normalised{Measure: sum}, nil
		}
		mean, err := composite.New(composite.Config{
			Base:        base,
			Fields1:     storedFields,
			Fields2:     queryFields,
			Policy:      composite.Policy(r.Measure.Policy),
			MaxDistance: r.Measure.MaxDistance,
		})
		if err != nil {
			return nil, err
		}
		return mean, nil
	}
}

// LinkerConfig returns the linker settings of the recipe.
func (r *Recipe) LinkerConfig(progressUpdates int) linkage.Config {
	return linkage.Config{
		LinkType:        r.LinkType,
		StoredRole:      r.StoredRole,
		QueryRole:       r.QueryRole,
		Threshold:       r.Threshold,
		Symmetric:       r.Symmetric,
		Strategy:        linkage.Strategy(r.Strategy),
		Query:           linkage.QueryMode(r.Search.Query),
		K:               r.Search.K,
		ProgressUpdates: progressUpdates,
	}
}

// SearchFactory returns the search structure factory of the recipe over metric.
func (r *Recipe) SearchFactory(metric search.Metric[records.Record], workers int, logger ectologger.Logger) (search.Factory[records.Record], error) {
	backend, err := search.ParseBackend(r.Search.Backend)
	if err != nil {
		return search.Factory[records.Record]{}, err
	}
	return search.Factory[records.Record]{
		Metric:       metric,
		Backend:      backend,
		NodeCapacity: r.Search.NodeCapacity,
		Pivot: search.PivotConfig{
			Pivots:  r.Search.Pivots,
			Seed:    r.Search.Seed,
			Workers: workers,
		},
		Logger: logger,
	}, nil
}

// Oracle returns the ground truth oracle, or nil when the recipe has no ground truth.
func (r *Recipe) Oracle() (groundtruth.Oracle, error) {
	if r.GroundTruth == nil {
		return nil, nil
	}
	storedSchema, querySchema := r.Schemas()
	oracle := groundtruth.FieldPairs{AnyAbsentUnknown: r.GroundTruth.AnyAbsentUnknown}
	for _, alternative := range r.GroundTruth.Alternatives {
		var pairs []groundtruth.FieldPair
		for _, p := range alternative {
			pair, err := resolvePair(p, storedSchema, querySchema)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, groundtruth.FieldPair{First: pair[0], Second: pair[1]})
		}
		oracle.Alternatives = append(oracle.Alternatives, pairs)
	}
	return oracle, nil
}

// TrueLinks returns the ground truth link counter, or nil when the recipe cannot count true links.
func (r *Recipe) TrueLinks() (func(stored, query []records.Record) int, error) {
	if r.GroundTruth == nil {
		return nil, nil
	}
	storedSchema, querySchema := r.Schemas()
	switch {
	case r.GroundTruth.Family != nil:
		ids, err := storedSchema.FieldIDs(r.GroundTruth.Family.Father, r.GroundTruth.Family.Mother)
		if err != nil {
			return nil, errors.NewConfigErrorf("recipe", "%w", err).AddSetting("ground_truth.family")
		}
		return func(stored, _ []records.Record) int {
			return groundtruth.SymmetricFamilyCount(stored, ids[0], ids[1])
		}, nil
	case r.GroundTruth.Key != nil:
		pair, err := resolvePair(*r.GroundTruth.Key, storedSchema, querySchema)
		if err != nil {
			return nil, err
		}
		return func(stored, query []records.Record) int {
			return groundtruth.AsymmetricCount(stored, query, pair[0], pair[1])
		}, nil
	}
	return nil, nil
}

func resolvePair(p FieldPairSpec, storedSchema, querySchema *records.Schema) ([2]records.FieldID, error) {
	queryName := p.Query
	if queryName == "" {
		queryName = p.Stored
	}
	first, ok := storedSchema.Lookup(p.Stored)
	if !ok {
		return [2]records.FieldID{}, errors.NewConfigErrorf("recipe", "unknown field '%s' for record type '%s'", p.Stored, storedSchema.Type).AddSetting("ground_truth")
	}
	second, ok := querySchema.Lookup(queryName)
	if !ok {
		return [2]records.FieldID{}, errors.NewConfigErrorf("recipe", "unknown field '%s' for record type '%s'", queryName, querySchema.Type).AddSetting("ground_truth")
	}
	return [2]records.FieldID{first, second}, nil
}

// ResolverConfig returns the cluster resolver settings, defaulting to the recipe's link type.
func (r *Recipe) ResolverConfig(repair bool) (resolver.Config, error) {
	spec := r.Resolver
	linkType := spec.LinkType
	if linkType == "" {
		linkType = r.LinkType
	}

	cfg := resolver.DefaultConfig(linkType)
	pattern, err := resolver.ParsePattern(spec.Pattern)
	if err != nil {
		return cfg, errors.NewConfigErrorf("recipe", "%w", err).AddSetting("resolver.pattern")
	}
	cfg.Pattern = pattern
	if repair {
		cfg.Mode = resolver.ModeRepair
	}
	if spec.SupportThreshold != nil {
		cfg.SupportThreshold = *spec.SupportThreshold
	}
	if spec.MinClusterSize != nil {
		cfg.MinClusterSize = *spec.MinClusterSize
	}
	if spec.LDRT != nil {
		cfg.LDRT = *spec.LDRT
	}
	if spec.HDRT != nil {
		cfg.HDRT = *spec.HDRT
	}
	if spec.Hierarchical != nil {
		cfg.Hierarchical = *spec.Hierarchical
	}
	if spec.TwoTriangles != nil {
		cfg.TwoTriangles = *spec.TwoTriangles
	}
	return cfg, nil
}

// SweepRanges returns the recipe's sweep ranges or the defaults.
func (r *Recipe) SweepRanges() resolver.SweepRanges {
	if r.Resolver.Sweep == nil {
		return resolver.DefaultSweepRanges()
	}
	return *r.Resolver.Sweep
}
