package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/groundtruth"
	"github.com/Ramsey-B/clover/pkg/linkage"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/records"
	"github.com/Ramsey-B/clover/pkg/resolver"
	"github.com/Ramsey-B/clover/pkg/search"
)

const siblingRecipe = `
name: birth-birth-sibling
link_type: sibling
stored_role: sibling
symmetric: true
stored:
  type: birth
  fields: [forename, surname, father_forename, mother_forename, father_id, mother_id]
linkage_fields:
  stored: [surname, father_forename, mother_forename]
required_fields: 2
measure:
  base: levenshtein
  policy: skip_missing_mean
threshold: 0.4
strategy: search
search:
  backend: mtree
  query: range
  node_capacity: 8
ground_truth:
  alternatives:
    - [{stored: father_id}, {stored: mother_id}]
  family:
    father: father_id
    mother: mother_id
resolver:
  pattern: all
  ldrt: 0.15
  min_cluster_size: 3
  hierarchical: false
`

const identityRecipe = `
name: birth-death-identity
link_type: identity
stored_role: baby
query_role: deceased
stored:
  type: birth
  fields: [forename, surname, child_id]
query:
  type: death
  fields: [deceased_forename, deceased_surname, deceased_id]
linkage_fields:
  stored: [forename, surname]
  query: [deceased_forename, deceased_surname]
measure:
  base: jaro_winkler
  composite: sum
  missing_distance: 1
threshold: 0.3
ground_truth:
  alternatives:
    - [{stored: child_id, query: deceased_id}]
  key: {stored: child_id, query: deceased_id}
`

func TestParseRecipe(t *testing.T) {
	t.Run("symmetric", func(t *testing.T) {
		r, err := ParseRecipe([]byte(siblingRecipe))
		require.NoError(t, err)

		stored, query := r.Schemas()
		assert.Same(t, stored, query)

		storedIDs, queryIDs, err := r.FieldIDs()
		require.NoError(t, err)
		assert.Equal(t, []records.FieldID{1, 2, 3}, storedIDs)
		assert.Equal(t, storedIDs, queryIDs)

		cfg := r.LinkerConfig(5)
		assert.Equal(t, linkage.SearchAssisted, cfg.Strategy)
		assert.Equal(t, linkage.QueryRange, cfg.Query)
		assert.Equal(t, 0.4, cfg.Threshold)
		assert.True(t, cfg.Symmetric)
		assert.Equal(t, 5, cfg.ProgressUpdates)
	})

	t.Run("asymmetric", func(t *testing.T) {
		r, err := ParseRecipe([]byte(identityRecipe))
		require.NoError(t, err)

		stored, query := r.Schemas()
		assert.Equal(t, "birth", stored.Type)
		assert.Equal(t, "death", query.Type)

		_, queryIDs, err := r.FieldIDs()
		require.NoError(t, err)
		assert.Equal(t, []records.FieldID{0, 1}, queryIDs)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := ParseRecipe([]byte(siblingRecipe + "colour: blue\n"))
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("missing query type", func(t *testing.T) {
		_, err := ParseRecipe([]byte(`
name: x
link_type: identity
stored_role: baby
stored: {type: birth, fields: [forename]}
linkage_fields: {stored: [forename]}
`))
		assert.ErrorContains(t, err, "query record type")
	})

	t.Run("unknown linkage field", func(t *testing.T) {
		_, err := ParseRecipe([]byte(`
name: x
link_type: sibling
stored_role: sibling
symmetric: true
stored: {type: birth, fields: [forename]}
linkage_fields: {stored: [surname]}
`))
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("knn without k", func(t *testing.T) {
		_, err := ParseRecipe([]byte(`
name: x
link_type: sibling
stored_role: sibling
symmetric: true
stored: {type: birth, fields: [forename]}
linkage_fields: {stored: [forename]}
strategy: search
search: {query: knn}
`))
		assert.ErrorContains(t, err, "k >= 1")
	})
}

func TestLoadRecipe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sibling.yaml")
	require.NoError(t, os.WriteFile(path, []byte(siblingRecipe), 0o600))

	r, err := LoadRecipe(path)
	require.NoError(t, err)
	assert.Equal(t, "birth-birth-sibling", r.Name)

	_, err = LoadRecipe(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRecipeMeasure(t *testing.T) {
	t.Run("mean", func(t *testing.T) {
		r, err := ParseRecipe([]byte(siblingRecipe))
		require.NoError(t, err)
		storedIDs, queryIDs, err := r.FieldIDs()
		require.NoError(t, err)

		m, err := r.MeasureFactory()(storedIDs, queryIDs)
		require.NoError(t, err)

		schema, _ := r.Schemas()
		a := records.New(schema, "b1", "ann", "smith", "john", "mary", "f1", "m1")
		b := records.New(schema, "b2", "bob", "smith", "john", "mary", "f1", "m1")
		d, err := m.Distance(a, b)
		require.NoError(t, err)
		assert.Equal(t, 0.0, d)
	})

	t.Run("sum", func(t *testing.T) {
		r, err := ParseRecipe([]byte(identityRecipe))
		require.NoError(t, err)
		storedIDs, queryIDs, err := r.FieldIDs()
		require.NoError(t, err)

		m, err := r.MeasureFactory()(storedIDs, queryIDs)
		require.NoError(t, err)
		assert.Contains(t, m.Name(), "normalised")

		stored, query := r.Schemas()
		d, err := m.Distance(records.New(stored, "b1", "ann", "smith", "c1"), records.New(query, "d1", "ann", "smith", "c1"))
		require.NoError(t, err)
		assert.Equal(t, 0.0, d)
	})

	t.Run("unknown base", func(t *testing.T) {
		r, err := ParseRecipe([]byte(siblingRecipe))
		require.NoError(t, err)
		r.Measure.Base = "telepathy"

		_, err = r.MeasureFactory()([]records.FieldID{1}, []records.FieldID{1})
		assert.True(t, errors.IsConfigError(err))
	})
}

func TestRecipeGroundTruth(t *testing.T) {
	t.Run("family", func(t *testing.T) {
		r, err := ParseRecipe([]byte(siblingRecipe))
		require.NoError(t, err)
		schema, _ := r.Schemas()
		rs := []records.Record{
			records.New(schema, "b1", "ann", "smith", "john", "mary", "f1", "m1"),
			records.New(schema, "b2", "bob", "smith", "john", "mary", "f1", "m1"),
			records.New(schema, "b3", "cat", "smith", "john", "mary", "f1", "m1"),
			records.New(schema, "b4", "dan", "jones", "", "", "", ""),
		}

		oracle, err := r.Oracle()
		require.NoError(t, err)
		assert.Equal(t, groundtruth.TrueMatch, oracle.IsTrueMatch(rs[0], rs[1]))
		assert.Equal(t, groundtruth.NotTrueMatch, oracle.IsTrueMatch(rs[0], rs[3]))
		assert.Equal(t, groundtruth.Unknown, oracle.IsTrueMatch(rs[3], rs[3]))

		count, err := r.TrueLinks()
		require.NoError(t, err)
		assert.Equal(t, 3, count(rs, rs))
	})

	t.Run("key", func(t *testing.T) {
		r, err := ParseRecipe([]byte(identityRecipe))
		require.NoError(t, err)
		stored, query := r.Schemas()

		count, err := r.TrueLinks()
		require.NoError(t, err)
		births := []records.Record{records.New(stored, "b1", "ann", "smith", "c1")}
		deaths := []records.Record{
			records.New(query, "d1", "ann", "smith", "c1"),
			records.New(query, "d2", "ann", "smyth", "c2"),
		}
		assert.Equal(t, 1, count(births, deaths))
	})

	t.Run("absent", func(t *testing.T) {
		r, err := ParseRecipe([]byte(siblingRecipe))
		require.NoError(t, err)
		r.GroundTruth = nil

		oracle, err := r.Oracle()
		require.NoError(t, err)
		assert.Nil(t, oracle)
		count, err := r.TrueLinks()
		require.NoError(t, err)
		assert.Nil(t, count)
	})
}

func TestRecipeSearchFactory(t *testing.T) {
	r, err := ParseRecipe([]byte(siblingRecipe))
	require.NoError(t, err)
	r.Search.Backend = "pivot"
	r.Search.Pivots = 4

	metric := search.MetricFunc[records.Record](func(a, b records.Record) (float64, error) { return 0, nil })
	f, err := r.SearchFactory(metric, 2, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, search.BackendPivot, f.Backend)
	assert.Equal(t, 4, f.Pivot.Pivots)
	assert.Equal(t, 2, f.Pivot.Workers)
}

func TestRecipeResolverConfig(t *testing.T) {
	t.Run("overrides", func(t *testing.T) {
		r, err := ParseRecipe([]byte(siblingRecipe))
		require.NoError(t, err)

		cfg, err := r.ResolverConfig(true)
		require.NoError(t, err)
		assert.Equal(t, "sibling", cfg.LinkType)
		assert.Equal(t, resolver.PatternAll, cfg.Pattern)
		assert.Equal(t, resolver.ModeRepair, cfg.Mode)
		assert.Equal(t, 0.15, cfg.LDRT)
		assert.Equal(t, resolver.DefaultHDRT, cfg.HDRT)
		assert.Equal(t, 3, cfg.MinClusterSize)
		assert.False(t, cfg.Hierarchical)
		assert.True(t, cfg.TwoTriangles)
		assert.Equal(t, resolver.DefaultSweepRanges(), r.SweepRanges())
	})

	t.Run("defaults", func(t *testing.T) {
		r, err := ParseRecipe([]byte(identityRecipe))
		require.NoError(t, err)

		cfg, err := r.ResolverConfig(false)
		require.NoError(t, err)
		assert.Equal(t, resolver.DefaultConfig("identity"), cfg)
	})
}

func TestBundledRecipes(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "recipes", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			r, err := LoadRecipe(path)
			require.NoError(t, err)

			storedIDs, queryIDs, err := r.FieldIDs()
			require.NoError(t, err)
			_, err = r.MeasureFactory()(storedIDs, queryIDs)
			require.NoError(t, err)

			_, err = r.ResolverConfig(false)
			require.NoError(t, err)
		})
	}
}
