package linkage

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/groundtruth"
	"github.com/Ramsey-B/clover/pkg/records"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Recipe describes one linkage between two record sources: which fields are compared, how, and
// how accepted links are judged and stored.
type Recipe struct {
	Name     string
	LinkType string

	Stored     records.Source
	Query      records.Source
	StoredRole string
	QueryRole  string
	Symmetric  bool

	StoredFields []records.FieldID
	QueryFields  []records.FieldID
	// RequiredFields is the number of populated linkage fields a record needs to take part.
	RequiredFields int
	// Limit caps the number of records kept per source. Zero keeps everything.
	Limit int

	// Measure builds the record distance over the two aligned field lists.
	Measure func(storedFields, queryFields []records.FieldID) (Metric, error)
	Oracle  groundtruth.Oracle
	// TrueLinks counts the true links among the loaded records.
	TrueLinks func(stored, query []records.Record) int
	Viable    func(Pair) bool
	Writers   []LinkWriter
}

func (r Recipe) Validate() error {
	if r.LinkType == "" {
		return errors.NewConfigError("recipe", "link type is required").AddSetting("link_type")
	}
	if r.Stored == nil || (!r.Symmetric && r.Query == nil) {
		return errors.NewConfigError("recipe", "record sources are required").AddSetting("sources")
	}
	if len(r.StoredFields) == 0 {
		return errors.NewConfigError("recipe", "linkage fields are required").AddSetting("fields")
	}
	if len(r.QueryFields) != 0 && len(r.QueryFields) != len(r.StoredFields) {
		return errors.NewConfigError("recipe", fmt.Sprintf("field lists differ in length: %d stored, %d query", len(r.StoredFields), len(r.QueryFields))).AddSetting("fields")
	}
	if r.Measure == nil {
		return errors.NewConfigError("recipe", "measure factory is required").AddSetting("measure")
	}
	return nil
}

func (r Recipe) queryFields() []records.FieldID {
	if len(r.QueryFields) == 0 {
		return r.StoredFields
	}
	return r.QueryFields
}

// NewMetric builds the recipe's record distance.
func (r Recipe) NewMetric() (Metric, error) {
	return r.Measure(r.StoredFields, r.queryFields())
}

// Load reads both sources and drops records with too few populated linkage fields. Symmetric
// recipes return the stored records as the query records.
func (r Recipe) Load(ctx context.Context, logger ectologger.Logger) (stored, query []records.Record, err error) {
	ctx, span := tracing.StartSpan(ctx, "linkage.Recipe.Load")
	defer span.End()

	log := logger.WithContext(ctx).WithFields(map[string]any{
		"recipe":          r.Name,
		"required_fields": r.RequiredFields,
	})

	all, err := r.Stored.Records(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load stored records")
		return nil, nil, fmt.Errorf("failed to load stored records: %w", err)
	}
	stored, rejected := records.Filter(all, r.StoredFields, r.RequiredFields, r.Limit)
	log.WithFields(map[string]any{"kept": len(stored), "rejected": rejected}).Info("Loaded stored records")

	if r.Symmetric {
		return stored, stored, nil
	}

	all, err = r.Query.Records(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load query records")
		return nil, nil, fmt.Errorf("failed to load query records: %w", err)
	}
	query, rejected = records.Filter(all, r.queryFields(), r.RequiredFields, r.Limit)
	log.WithFields(map[string]any{"kept": len(query), "rejected": rejected}).Info("Loaded query records")

	return stored, query, nil
}

// FieldsPopulated counts the linkage fields populated in both records of a pair.
func (r Recipe) FieldsPopulated(p Pair) int {
	return records.JointlyPopulated(p.Stored, r.StoredFields, p.Query, r.queryFields())
}
