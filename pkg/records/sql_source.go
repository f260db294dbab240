package records

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SQLSourceConfig describes a wide table holding one record per row and one column per schema field.
type SQLSourceConfig struct {
	Table      string `validate:"required"`
	IDColumn   string `validate:"required"`
	TypeColumn string // optional discriminator column
	RecordType string // value of TypeColumn to select
	Limit      int
}

// SQLSource loads records from a relational table.
type SQLSource struct {
	db     *sqlx.DB
	schema *Schema
	cfg    SQLSourceConfig
	logger ectologger.Logger
}

func NewSQLSource(db *sqlx.DB, schema *Schema, cfg SQLSourceConfig, logger ectologger.Logger) *SQLSource {
	return &SQLSource{
		db:     db,
		schema: schema,
		cfg:    cfg,
		logger: logger,
	}
}

// flavor picks the placeholder dialect for the connected driver.
func (s *SQLSource) flavor() sqlbuilder.Flavor {
	switch s.db.DriverName() {
	case "sqlite", "sqlite3":
		return sqlbuilder.SQLite
	case "mysql":
		return sqlbuilder.MySQL
	default:
		return sqlbuilder.PostgreSQL
	}
}

// Query builds the select statement for the configured table.
func (s *SQLSource) Query() (string, []any) {
	cols := append([]string{s.cfg.IDColumn}, s.schema.Fields...)

	sb := s.flavor().NewSelectBuilder()
	sb.Select(cols...)
	sb.From(s.cfg.Table)
	if s.cfg.TypeColumn != "" {
		sb.Where(sb.Equal(s.cfg.TypeColumn, s.cfg.RecordType))
	}
	sb.OrderBy(s.cfg.IDColumn)
	if s.cfg.Limit > 0 {
		sb.Limit(s.cfg.Limit)
	}

	return sb.Build()
}

// Records reads every matching row. NULL columns read as empty, which the engine treats as missing.
// Rows with an empty or repeated id fail the load with a DataError.
func (s *SQLSource) Records(ctx context.Context) ([]Record, error) {
	ctx, span := tracing.StartSpan(ctx, "records.SQLSource.Records")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"table":       s.cfg.Table,
		"record_type": s.schema.Type,
	})

	query, args := s.Query()
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).Error("Failed to query records")
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	seen := map[string]struct{}{}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			log.WithError(err).Error("Failed to scan record row")
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}

		r, err := s.record(row)
		if err != nil {
			log.WithError(err).Error("Malformed record row")
			return nil, err
		}
		if _, dup := seen[r.ID()]; dup {
			err := errors.NewDataError(r.ID(), "duplicate record id").AddField(s.cfg.IDColumn)
			log.WithError(err).Error("Malformed record row")
			return nil, err
		}
		seen[r.ID()] = struct{}{}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		log.WithError(err).Error("Failed to iterate record rows")
		return nil, fmt.Errorf("failed to iterate record rows: %w", err)
	}

	log.WithField("count", len(out)).Debug("Loaded records")
	return out, nil
}

// record converts one scanned row. Rows without an id are malformed.
func (s *SQLSource) record(row map[string]any) (*Fields, error) {
	id := strings.TrimSpace(columnString(row[s.cfg.IDColumn]))
	if id == "" {
		return nil, errors.NewDataError("", "row has no record id").AddField(s.cfg.IDColumn)
	}

	values := make(map[string]string, len(s.schema.Fields))
	for _, name := range s.schema.Fields {
		values[name] = columnString(row[name])
	}
	return FromMap(s.schema, id, values), nil
}

func columnString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
