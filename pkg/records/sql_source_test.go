package records

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Ramsey-B/clover/pkg/errors"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	db.MustExec(`CREATE TABLE people (
		standardised_id TEXT PRIMARY KEY,
		record_type TEXT,
		forename TEXT,
		surname TEXT,
		father_forename TEXT,
		mother_forename TEXT
	)`)
	db.MustExec(`INSERT INTO people VALUES ('b2', 'birth', 'mary', 'smith', 'john', NULL)`)
	db.MustExec(`INSERT INTO people VALUES ('b1', 'birth', 'james', 'smith', 'john', 'ann')`)
	db.MustExec(`INSERT INTO people VALUES ('d1', 'death', 'james', 'smith', '', '')`)
	return db
}

func TestSQLSource(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db := newTestDB(t)

	t.Run("loads filtered rows in id order", func(t *testing.T) {
		src := NewSQLSource(db, births, SQLSourceConfig{
			Table:      "people",
			IDColumn:   "standardised_id",
			TypeColumn: "record_type",
			RecordType: "birth",
		}, logger)

		rs, err := src.Records(context.Background())
		require.NoError(t, err)
		require.Len(t, rs, 2)

		assert.Equal(t, "b1", rs[0].ID())
		assert.Equal(t, "b2", rs[1].ID())

		v, ok := rs[0].Field(3)
		assert.True(t, ok)
		assert.Equal(t, "ann", v)

		_, present := Value(rs[1], 3)
		assert.False(t, present, "NULL reads as missing")
	})

	t.Run("limit", func(t *testing.T) {
		src := NewSQLSource(db, births, SQLSourceConfig{
			Table:    "people",
			IDColumn: "standardised_id",
			Limit:    1,
		}, logger)

		rs, err := src.Records(context.Background())
		require.NoError(t, err)
		assert.Len(t, rs, 1)
	})

	t.Run("query uses driver placeholders", func(t *testing.T) {
		src := NewSQLSource(db, births, SQLSourceConfig{
			Table:      "people",
			IDColumn:   "standardised_id",
			TypeColumn: "record_type",
			RecordType: "death",
		}, logger)

		query, args := src.Query()
		assert.Contains(t, query, "record_type = ?")
		assert.Equal(t, []any{"death"}, args)
	})

	t.Run("missing table fails", func(t *testing.T) {
		src := NewSQLSource(db, births, SQLSourceConfig{Table: "nope", IDColumn: "id"}, logger)
		_, err := src.Records(context.Background())
		assert.Error(t, err)
		assert.False(t, errors.IsDataError(err))
	})
}

func TestSQLSourceMalformedRows(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	cfg := SQLSourceConfig{Table: "loose", IDColumn: "standardised_id"}

	newLooseDB := func(t *testing.T, rows ...string) *sqlx.DB {
		db, err := sqlx.Open("sqlite", ":memory:")
		require.NoError(t, err)
		db.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = db.Close() })

		db.MustExec(`CREATE TABLE loose (
			standardised_id TEXT,
			forename TEXT,
			surname TEXT,
			father_forename TEXT,
			mother_forename TEXT
		)`)
		for _, row := range rows {
			db.MustExec(row)
		}
		return db
	}

	t.Run("missing id", func(t *testing.T) {
		db := newLooseDB(t,
			`INSERT INTO loose VALUES ('b1', 'james', 'smith', 'john', 'ann')`,
			`INSERT INTO loose VALUES (NULL, 'mary', 'smith', 'john', 'ann')`,
		)
		_, err := NewSQLSource(db, births, cfg, logger).Records(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsDataError(err))
		assert.Contains(t, err.Error(), "standardised_id")
	})

	t.Run("duplicate id", func(t *testing.T) {
		db := newLooseDB(t,
			`INSERT INTO loose VALUES ('b1', 'james', 'smith', 'john', 'ann')`,
			`INSERT INTO loose VALUES ('b1', 'mary', 'smith', 'john', 'ann')`,
		)
		_, err := NewSQLSource(db, births, cfg, logger).Records(context.Background())
		require.Error(t, err)

		var dataErr *errors.DataError
		require.ErrorAs(t, err, &dataErr)
		assert.Equal(t, "b1", dataErr.RecordID)
		assert.Equal(t, "standardised_id", dataErr.Field)
	})

	t.Run("columns map onto schema fields by name", func(t *testing.T) {
		db := newLooseDB(t, `INSERT INTO loose (standardised_id, surname, forename) VALUES ('b1', 'smith', 'james')`)
		rs, err := NewSQLSource(db, births, cfg, logger).Records(context.Background())
		require.NoError(t, err)
		require.Len(t, rs, 1)

		v, _ := rs[0].Field(0)
		assert.Equal(t, "james", v)
		v, _ = rs[0].Field(1)
		assert.Equal(t, "smith", v)
		_, present := Value(rs[0], 2)
		assert.False(t, present)
	})
}
