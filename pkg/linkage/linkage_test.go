package linkage

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/composite"
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/measures"
	"github.com/Ramsey-B/clover/pkg/records"
	"github.com/Ramsey-B/clover/pkg/search"
)

var (
	schema = records.NewSchema("birth", "forename", "surname", "place")
	fields = []records.FieldID{0, 1, 2}

	r1 = records.New(schema, "1", "john", "smith", "edinburgh")
	r2 = records.New(schema, "2", "john", "smith", "glasgow")
	r3 = records.New(schema, "3", "jon", "smith", "edinburgh")
	r4 = records.New(schema, "4", "mary", "brown", "perth")
	r5 = records.New(schema, "5", "john", "smith", "edinburgh")

	all = []records.Record{r1, r2, r3, r4, r5}
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func exactMeasure(t *testing.T) *composite.MeanOfFields {
	t.Helper()
	m, err := composite.New(composite.Config{Base: measures.Exact{}, Fields1: fields, Policy: composite.ZeroForMissing})
	require.NoError(t, err)
	return m
}

func newLinker(t *testing.T, cfg Config, structures StructureFactory) *Linker {
	t.Helper()
	l, err := NewLinker(cfg, exactMeasure(t), structures, testLogger())
	require.NoError(t, err)
	return l
}

func pairsOf(links []Link) [][2]string {
	out := make([][2]string, len(links))
	for i, l := range links {
		out[i] = [2]string{l.Role1.RecordID, l.Role2.RecordID}
	}
	return out
}

func TestLinkSet(t *testing.T) {
	a := Role{RecordID: "a", RoleType: "sibling"}
	b := Role{RecordID: "b", RoleType: "sibling"}

	t.Run("symmetric sets collapse both orders", func(t *testing.T) {
		set := NewLinkSet(true)
		assert.True(t, set.Add(NewLink(a, b, "sibling", 0.1)))
		assert.False(t, set.Add(NewLink(b, a, "sibling", 0.2)))
		assert.Equal(t, 1, set.Len())
		assert.Equal(t, 0.1, set.Links()[0].Distance)
	})

	t.Run("asymmetric sets keep both orders", func(t *testing.T) {
		set := NewLinkSet(false)
		assert.True(t, set.Add(NewLink(a, b, "sibling", 0.1)))
		assert.True(t, set.Add(NewLink(b, a, "sibling", 0.1)))
		assert.Equal(t, 2, set.Len())
	})

	t.Run("identity is the role pair only", func(t *testing.T) {
		set := NewLinkSet(false)
		set.Add(NewLink(a, b, "sibling", 0.1, "one"))
		assert.True(t, set.Contains(Link{Role1: a, Role2: b, Distance: 0.9}))
		assert.False(t, set.Contains(Link{Role1: a, Role2: Role{RecordID: "b", RoleType: "father"}}))
	})
}

func TestNewLinker(t *testing.T) {
	m := exactMeasure(t)

	t.Run("negative threshold", func(t *testing.T) {
		_, err := NewLinker(Config{Threshold: -1}, m, nil, testLogger())
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("search needs a factory", func(t *testing.T) {
		_, err := NewLinker(Config{Strategy: SearchAssisted}, m, nil, testLogger())
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("k nearest needs k", func(t *testing.T) {
		f := search.Factory[records.Record]{Metric: m, Backend: search.BackendLinear}
		_, err := NewLinker(Config{Strategy: SearchAssisted, Query: QueryKNearest}, m, f, testLogger())
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, err := NewLinker(Config{Strategy: "bitblaster"}, m, nil, testLogger())
		assert.True(t, errors.IsConfigError(err))
	})
}

func TestExhaustiveLinker(t *testing.T) {
	ctx := context.Background()

	t.Run("symmetric linkage", func(t *testing.T) {
		l := newLinker(t, Config{LinkType: "sibling", StoredRole: "sibling", Threshold: 0.34, Symmetric: true}, nil)
		set, err := l.Link(ctx, all, nil)
		require.NoError(t, err)
		assert.Equal(t, 5, set.Len())

		for _, link := range set.Links() {
			assert.NotEqual(t, link.Role1.RecordID, link.Role2.RecordID)
			assert.Equal(t, "sibling", link.Role2.RoleType)
			assert.LessOrEqual(t, link.Distance, 0.34)
			assert.NotEmpty(t, link.ID)
		}
		assert.False(t, set.Contains(Link{Role1: Role{"2", "sibling"}, Role2: Role{"3", "sibling"}}))
	})

	t.Run("idempotent", func(t *testing.T) {
		l := newLinker(t, Config{LinkType: "sibling", StoredRole: "sibling", Threshold: 0.34, Symmetric: true}, nil)
		first, err := l.Link(ctx, all, nil)
		require.NoError(t, err)
		second, err := l.Link(ctx, all, nil)
		require.NoError(t, err)
		assert.True(t, first.Equal(second))
	})

	t.Run("provenance", func(t *testing.T) {
		l := newLinker(t, Config{LinkType: "sibling", StoredRole: "sibling", Threshold: 0.34, Symmetric: true}, nil)
		set, err := l.Link(ctx, []records.Record{r1, r2}, nil)
		require.NoError(t, err)
		require.Equal(t, 1, set.Len())
		assert.Equal(t, []string{"exhaustive match at 0.34", "distance: 0.3333333333333333"}, set.Links()[0].Provenance)
	})

	t.Run("exact match mode", func(t *testing.T) {
		l := newLinker(t, Config{LinkType: "sibling", StoredRole: "sibling", Symmetric: true}, nil)
		set, err := l.Link(ctx, all, nil)
		require.NoError(t, err)
		require.Equal(t, 1, set.Len())
		link := set.Links()[0]
		assert.Equal(t, "exact match", link.Provenance[0])
		assert.ElementsMatch(t, []string{"1", "5"}, []string{link.Role1.RecordID, link.Role2.RecordID})
	})

	t.Run("asymmetric linkage keeps stored role first", func(t *testing.T) {
		l := newLinker(t, Config{LinkType: "identity", StoredRole: "birth", QueryRole: "death", Threshold: 0.34}, nil)
		set, err := l.Link(ctx, []records.Record{r1, r2}, []records.Record{r3, r5})
		require.NoError(t, err)
		assert.Equal(t, [][2]string{{"1", "3"}, {"1", "5"}, {"2", "5"}}, pairsOf(set.Links()))
		assert.Equal(t, "death", set.Links()[0].Role2.RoleType)
	})

	t.Run("viability predicate", func(t *testing.T) {
		viable := func(p Pair) bool { return p.Stored.ID() != "2" }
		l := newLinker(t, Config{LinkType: "identity", StoredRole: "birth", QueryRole: "death", Threshold: 0.34, Viable: viable}, nil)
		set, err := l.Link(ctx, []records.Record{r1, r2}, []records.Record{r3, r5})
		require.NoError(t, err)
		assert.Equal(t, [][2]string{{"1", "3"}, {"1", "5"}}, pairsOf(set.Links()))
	})

	t.Run("fields populated recorded on links", func(t *testing.T) {
		recipe := Recipe{StoredFields: fields}
		l := newLinker(t, Config{LinkType: "identity", StoredRole: "birth", QueryRole: "death", Threshold: 0.34, FieldsPopulated: recipe.FieldsPopulated}, nil)
		set, err := l.Link(ctx, []records.Record{r1}, []records.Record{r5})
		require.NoError(t, err)
		assert.Equal(t, 3, set.Links()[0].FieldsPopulated)
	})

	t.Run("measure errors propagate", func(t *testing.T) {
		m, err := composite.New(composite.Config{Base: measures.Hamming{}, Fields1: fields, Policy: composite.ZeroForMissing})
		require.NoError(t, err)
		l, err := NewLinker(Config{LinkType: "identity", Threshold: 1}, m, nil, testLogger())
		require.NoError(t, err)

		long := records.New(schema, "9", "john", "smithson", "edinburgh")
		_, err = l.Link(ctx, []records.Record{r1}, []records.Record{long})
		require.Error(t, err)
		assert.True(t, errors.IsMeasureError(err))
		assert.Contains(t, err.Error(), "surname")
	})
}

func TestSearchAssistedLinker(t *testing.T) {
	ctx := context.Background()
	m := exactMeasure(t)

	exhaustive := newLinker(t, Config{LinkType: "sibling", StoredRole: "sibling", Threshold: 0.34, Symmetric: true}, nil)
	want, err := exhaustive.Link(ctx, all, nil)
	require.NoError(t, err)

	for _, backend := range []search.Backend{search.BackendMTree, search.BackendPivot, search.BackendLinear} {
		t.Run(string(backend)+" matches exhaustive linkage", func(t *testing.T) {
			f := search.Factory[records.Record]{
				Metric:       m,
				Backend:      backend,
				NodeCapacity: 2,
				Pivot:        search.PivotConfig{Pivots: 2, Workers: 2},
				Logger:       testLogger(),
			}
			l := newLinker(t, Config{LinkType: "sibling", StoredRole: "sibling", Threshold: 0.34, Symmetric: true, Strategy: SearchAssisted}, f)
			got, err := l.Link(ctx, all, nil)
			require.NoError(t, err)
			assert.True(t, want.Equal(got))
			assert.Equal(t, "search match at 0.34", got.Links()[0].Provenance[0])
		})
	}

	t.Run("supplied pivots", func(t *testing.T) {
		f := search.Factory[records.Record]{Metric: m, Backend: search.BackendPivot, Logger: testLogger()}
		l := newLinker(t, Config{LinkType: "sibling", StoredRole: "sibling", Threshold: 0.34, Symmetric: true, Strategy: SearchAssisted, Pivots: []records.Record{r1, r4}}, f)
		got, err := l.Link(ctx, all, nil)
		require.NoError(t, err)
		assert.True(t, want.Equal(got))
	})

	t.Run("k nearest", func(t *testing.T) {
		f := search.Factory[records.Record]{Metric: m, Backend: search.BackendLinear}
		l := newLinker(t, Config{LinkType: "identity", StoredRole: "birth", QueryRole: "death", Threshold: 0.34, Strategy: SearchAssisted, Query: QueryKNearest, K: 1}, f)
		set, err := l.Link(ctx, []records.Record{r1, r2, r4}, []records.Record{r3, r5})
		require.NoError(t, err)
		assert.Equal(t, [][2]string{{"1", "3"}, {"1", "5"}}, pairsOf(set.Links()))
	})
}

func TestLists(t *testing.T) {
	l := newLinker(t, Config{LinkType: "identity", StoredRole: "birth", QueryRole: "death", Threshold: 0.34}, nil)
	lists, err := l.Lists(context.Background(), []records.Record{r2, r1, r4}, []records.Record{r5, r4})
	require.NoError(t, err)
	require.Len(t, lists, 2)

	assert.Equal(t, "5", lists[0].QueryID)
	assert.Equal(t, [][2]string{{"1", "5"}, {"2", "5"}}, pairsOf(lists[0].Links))
	assert.Equal(t, "4", lists[1].QueryID)

	closest := ClosestOnly(lists)
	assert.Equal(t, [][2]string{{"1", "5"}, {"4", "4"}}, pairsOf(closest))
}

func TestProgressIndicator(t *testing.T) {
	p := NewProgressIndicator("sibling", 4, testLogger())
	p.SetTotal(10)
	for i := 0; i < 10; i++ {
		p.Step()
	}
	assert.Equal(t, 4, p.Reported())
	assert.Equal(t, 100.0, p.Percent())

	var nilIndicator *ProgressIndicator
	assert.NotPanics(t, nilIndicator.Step)
}

type memoryWriter struct {
	links map[[2]string]Link
}

func (w *memoryWriter) LinkExists(_ context.Context, link Link) (bool, error) {
	_, ok := w.links[[2]string{link.Role1.RecordID, link.Role2.RecordID}]
	return ok, nil
}

func (w *memoryWriter) CreateLink(_ context.Context, link Link) error {
	w.links[[2]string{link.Role1.RecordID, link.Role2.RecordID}] = link
	return nil
}

func TestPersist(t *testing.T) {
	w := &memoryWriter{links: map[[2]string]Link{}}
	links := []Link{
		NewLink(Role{"1", "birth"}, Role{"2", "death"}, "identity", 0.1),
		NewLink(Role{"3", "birth"}, Role{"4", "death"}, "identity", 0.2),
	}

	res, err := Persist(context.Background(), links, testLogger(), w)
	require.NoError(t, err)
	assert.Equal(t, PersistResult{Created: 2}, res)

	res, err = Persist(context.Background(), links, testLogger(), w)
	require.NoError(t, err)
	assert.Equal(t, PersistResult{Existing: 2}, res)
	assert.Len(t, w.links, 2)
}

func TestRecipe(t *testing.T) {
	sparse := records.New(schema, "6", "", "smith", "--")

	t.Run("validate", func(t *testing.T) {
		assert.True(t, errors.IsConfigError(Recipe{}.Validate()))
		assert.True(t, errors.IsConfigError(Recipe{LinkType: "x", Stored: records.Slice(all), Symmetric: true}.Validate()))
		assert.True(t, errors.IsConfigError(Recipe{LinkType: "x", Stored: records.Slice(all), Symmetric: true, StoredFields: fields, QueryFields: fields[:1]}.Validate()))
	})

	t.Run("load filters sparse records", func(t *testing.T) {
		recipe := Recipe{
			LinkType:       "sibling",
			Stored:         records.Slice(append([]records.Record{sparse}, all...)),
			Symmetric:      true,
			StoredFields:   fields,
			RequiredFields: 2,
		}
		stored, query, err := recipe.Load(context.Background(), testLogger())
		require.NoError(t, err)
		assert.Len(t, stored, 5)
		assert.Equal(t, stored, query)
	})

	t.Run("asymmetric load with limit", func(t *testing.T) {
		recipe := Recipe{
			LinkType:     "identity",
			Stored:       records.Slice(all),
			Query:        records.Slice([]records.Record{r3, sparse}),
			StoredFields: fields,
			Limit:        2,
		}
		stored, query, err := recipe.Load(context.Background(), testLogger())
		require.NoError(t, err)
		assert.Len(t, stored, 2)
		assert.Len(t, query, 2)
	})
}
