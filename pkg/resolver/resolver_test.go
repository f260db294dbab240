package resolver

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/groundtruth"
)

const linkType = "sibling"

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type edgeSpec struct {
	from, to string
	distance float64
}

func memoryGraph(t *testing.T, specs ...edgeSpec) *graph.Memory {
	t.Helper()
	m := graph.NewMemory("test")
	for _, s := range specs {
		require.NoError(t, m.AddEdge(context.Background(), graph.Edge{
			From: s.from, To: s.to, LinkType: linkType, Distance: s.distance, HasDistance: true,
		}))
	}
	return m
}

func resolve(t *testing.T, m *graph.Memory, cfg Config) *Report {
	t.Helper()
	r, err := NewResolver(m, m, cfg, testLogger())
	require.NoError(t, err)
	report, err := r.Resolve(context.Background())
	require.NoError(t, err)
	return report
}

func actionsOf(report *Report, kind Classification) []Action {
	var out []Action
	for _, a := range report.Actions {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

type failingReader struct{}

func (failingReader) Edges(context.Context, string) ([]graph.Edge, error) {
	return nil, stderrors.New("connection refused")
}

func TestClassifyClosed(t *testing.T) {
	th := Thresholds{LDRT: 0.2, HDRT: 0.5, SupportThreshold: 2}

	t.Run("all edges under hdrt", func(t *testing.T) {
		kind, _ := ClassifyClosed(Triangle{X: "a", Y: "b", Z: "c", XY: 0.1, YZ: 0.2, XZ: 0.5, Closed: true}, th)
		assert.Equal(t, Consistent, kind)
	})

	t.Run("long edge supported by two low edges", func(t *testing.T) {
		kind, _ := ClassifyClosed(Triangle{X: "a", Y: "b", Z: "c", XY: 0.1, YZ: 0.05, XZ: 0.6, Closed: true}, th)
		assert.Equal(t, Consistent, kind)
	})

	t.Run("long edge disputed", func(t *testing.T) {
		kind, disputed := ClassifyClosed(Triangle{X: "a", Y: "b", Z: "c", XY: 0.3, YZ: 0.6, XZ: 0.3, Closed: true}, th)
		assert.Equal(t, InconsistentClosed, kind)
		assert.Equal(t, [2]string{"b", "c"}, disputed)
	})
}

func TestClassifyOpen(t *testing.T) {
	th := Thresholds{LDRT: 0.2, HDRT: 0.5, SupportThreshold: 2}
	open := func(xy, yz float64) Triangle {
		return Triangle{X: "a", Y: "b", Z: "c", XY: xy, YZ: yz}
	}

	t.Run("low distance adds missing edge", func(t *testing.T) {
		kind, pair := ClassifyOpen(open(0.05, 0.1), 1, th)
		assert.Equal(t, AddEdge, kind)
		assert.Equal(t, [2]string{"a", "c"}, pair)
	})

	t.Run("shared neighbours add missing edge", func(t *testing.T) {
		kind, _ := ClassifyOpen(open(0.3, 0.3), 2, th)
		assert.Equal(t, AddEdge, kind)
	})

	t.Run("high distance removes longer edge", func(t *testing.T) {
		kind, pair := ClassifyOpen(open(0.2, 0.4), 1, th)
		assert.Equal(t, RemoveEdge, kind)
		assert.Equal(t, [2]string{"b", "c"}, pair)

		kind, pair = ClassifyOpen(open(0.4, 0.2), 1, th)
		assert.Equal(t, RemoveEdge, kind)
		assert.Equal(t, [2]string{"a", "b"}, pair)
	})

	t.Run("between thresholds is unresolved", func(t *testing.T) {
		kind, _ := ClassifyOpen(open(0.15, 0.15), 1, th)
		assert.Equal(t, Unresolved, kind)
	})

	t.Run("repeated node is degenerate", func(t *testing.T) {
		kind, _ := ClassifyOpen(Triangle{X: "a", Y: "b", Z: "a"}, 0, th)
		assert.Equal(t, Degenerate, kind)
	})
}

func TestResolve(t *testing.T) {
	t.Run("closed triangle under hdrt is consistent", func(t *testing.T) {
		m := memoryGraph(t, edgeSpec{"a", "b", 0.1}, edgeSpec{"b", "c", 0.2}, edgeSpec{"a", "c", 0.3})
		cfg := DefaultConfig(linkType)
		cfg.Pattern = PatternAll

		report := resolve(t, m, cfg)
		assert.Equal(t, 1, report.Stats.Examined)
		assert.Equal(t, 1, report.Stats.ClosedTriangles)
		assert.Equal(t, 1, report.Stats.Consistent)
		assert.Zero(t, report.Stats.OpenTriangles)
		assert.Empty(t, report.Actions)
	})

	t.Run("open pattern ignores closed triangles", func(t *testing.T) {
		m := memoryGraph(t, edgeSpec{"a", "b", 0.1}, edgeSpec{"b", "c", 0.6}, edgeSpec{"a", "c", 0.6})
		report := resolve(t, m, DefaultConfig(linkType))
		assert.Zero(t, report.Stats.ClosedTriangles)
		assert.Empty(t, report.Actions)
	})

	t.Run("low open triangle is reported without repair", func(t *testing.T) {
		m := memoryGraph(t, edgeSpec{"a", "b", 0.05}, edgeSpec{"b", "c", 0.05})
		report := resolve(t, m, DefaultConfig(linkType))

		adds := actionsOf(report, AddEdge)
		require.Len(t, adds, 1)
		assert.Equal(t, "a", adds[0].From)
		assert.Equal(t, "c", adds[0].To)
		assert.False(t, adds[0].Applied)

		edges, _ := m.Edges(context.Background(), linkType)
		assert.Len(t, edges, 2)
	})

	t.Run("repair adds missing edge with provenance", func(t *testing.T) {
		m := memoryGraph(t, edgeSpec{"a", "b", 0.05}, edgeSpec{"b", "c", 0.05})
		cfg := DefaultConfig(linkType)
		cfg.Mode = ModeRepair

		report := resolve(t, m, cfg)
		require.Len(t, report.Actions, 1)
		assert.True(t, report.Actions[0].Applied)

		edges, _ := m.Edges(context.Background(), linkType)
		require.Len(t, edges, 3)
		assert.Equal(t, [2]string{"a", "c"}, edges[1].Key())
		assert.InDelta(t, 0.1, edges[1].Distance, 1e-12)
		assert.Equal(t, []string{OpenTriangleProvenance}, edges[1].Provenance)

		again := resolve(t, m, cfg)
		assert.Empty(t, again.Actions)
	})

	t.Run("distance function overrides summed distance", func(t *testing.T) {
		m := memoryGraph(t, edgeSpec{"a", "b", 0.05}, edgeSpec{"b", "c", 0.05})
		cfg := DefaultConfig(linkType)
		cfg.Distance = func(a, b string) (float64, bool) { return 0.01, true }

		report := resolve(t, m, cfg)
		require.Len(t, report.Actions, 1)
		assert.Equal(t, 0.01, report.Actions[0].Distance)
	})

	t.Run("repair removes longer edge and leaves marker", func(t *testing.T) {
		m := memoryGraph(t, edgeSpec{"a", "b", 0.2}, edgeSpec{"b", "c", 0.4})
		cfg := DefaultConfig(linkType)
		cfg.Mode = ModeRepair

		report := resolve(t, m, cfg)
		removes := actionsOf(report, RemoveEdge)
		require.Len(t, removes, 1)
		assert.Equal(t, [2]string{"b", "c"}, [2]string{removes[0].From, removes[0].To})

		edges, _ := m.Edges(context.Background(), linkType)
		require.Len(t, edges, 1)
		deleted := m.Deleted(linkType)
		require.Len(t, deleted, 1)
		assert.Equal(t, []string{OpenTriangleProvenance}, deleted[0].Provenance)
	})

	t.Run("unresolved between thresholds", func(t *testing.T) {
		m := memoryGraph(t, edgeSpec{"a", "b", 0.15}, edgeSpec{"b", "c", 0.15})
		report := resolve(t, m, DefaultConfig(linkType))
		assert.Equal(t, 1, report.Stats.Unresolved)
		assert.Empty(t, report.Actions)
	})

	t.Run("shared neighbours support closing", func(t *testing.T) {
		m := memoryGraph(t,
			edgeSpec{"a", "b", 0.2}, edgeSpec{"b", "c", 0.2},
			edgeSpec{"c", "d", 0.2}, edgeSpec{"a", "d", 0.2})
		report := resolve(t, m, DefaultConfig(linkType))

		adds := actionsOf(report, AddEdge)
		require.Len(t, adds, 2)
		assert.Equal(t, [2]string{"b", "d"}, [2]string{adds[0].From, adds[0].To})
		assert.Equal(t, [2]string{"a", "c"}, [2]string{adds[1].From, adds[1].To})
		assert.Equal(t, 4, report.Stats.OpenTriangles)
	})

	t.Run("small clusters and missing distances are skipped", func(t *testing.T) {
		m := memoryGraph(t, edgeSpec{"a", "b", 0.05}, edgeSpec{"b", "c", 0.05}, edgeSpec{"x", "y", 0.05})
		require.NoError(t, m.AddEdge(context.Background(), graph.Edge{From: "p", To: "q", LinkType: linkType}))
		require.NoError(t, m.AddEdge(context.Background(), graph.Edge{From: "q", To: "r", LinkType: linkType, Distance: 0.1, HasDistance: true}))

		report := resolve(t, m, DefaultConfig(linkType))
		assert.Equal(t, 3, report.Stats.Clusters)
		assert.Equal(t, 1, report.Stats.Examined)
		assert.Equal(t, 2, report.Stats.Skipped)
		assert.Equal(t, 1, report.Stats.MissingDistance)

		cfg := DefaultConfig(linkType)
		cfg.MinClusterSize = 3
		report = resolve(t, m, cfg)
		assert.Zero(t, report.Stats.Examined)
		assert.Empty(t, report.Actions)
	})

	t.Run("graph read failure aborts the pass", func(t *testing.T) {
		r, err := NewResolver(failingReader{}, nil, DefaultConfig(linkType), testLogger())
		require.NoError(t, err)
		_, err = r.Resolve(context.Background())
		assert.ErrorIs(t, err, errors.ErrGraphRead)
	})
}

func TestNewResolver(t *testing.T) {
	m := graph.NewMemory("")

	t.Run("repair needs a writer", func(t *testing.T) {
		cfg := DefaultConfig(linkType)
		cfg.Mode = ModeRepair
		_, err := NewResolver(m, nil, cfg, testLogger())
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("link type is required", func(t *testing.T) {
		_, err := NewResolver(m, m, DefaultConfig(""), testLogger())
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("unknown pattern", func(t *testing.T) {
		cfg := DefaultConfig(linkType)
		cfg.Pattern = "hexagon"
		_, err := NewResolver(m, m, cfg, testLogger())
		assert.True(t, errors.IsConfigError(err))
	})
}

func TestTwoTriangles(t *testing.T) {
	m := memoryGraph(t,
		edgeSpec{"t1", "t2", 0.05}, edgeSpec{"t2", "t3", 0.05}, edgeSpec{"t1", "t3", 0.05},
		edgeSpec{"s1", "s2", 0.05}, edgeSpec{"s2", "s3", 0.05}, edgeSpec{"s1", "s3", 0.05},
		edgeSpec{"t1", "s1", 0.05}, edgeSpec{"t2", "s2", 0.05})
	cfg := DefaultConfig(linkType)
	cfg.Hierarchical = false

	report := resolve(t, m, cfg)
	require.Len(t, report.TwoTriangles, 1)
	tt := report.TwoTriangles[0]
	assert.Equal(t, [2]string{"s3", "t3"}, graph.PairKey(tt.MissingFrom, tt.MissingTo))
	assert.InDelta(t, 0.1, tt.T1S1+tt.T2S2, 1e-12)

	var found bool
	for _, a := range actionsOf(report, AddEdge) {
		if a.From == "s3" && a.To == "t3" {
			found = true
			assert.Equal(t, TwoTriangleProvenance, a.Source)
		}
	}
	assert.True(t, found)

	cfg.TwoTriangles = false
	report = resolve(t, m, cfg)
	assert.Empty(t, report.TwoTriangles)
}

func TestHierarchicalSplit(t *testing.T) {
	m := memoryGraph(t,
		edgeSpec{"a1", "a2", 0.05}, edgeSpec{"a2", "a3", 0.05}, edgeSpec{"a1", "a3", 0.05},
		edgeSpec{"b1", "b2", 0.05}, edgeSpec{"b2", "b3", 0.05}, edgeSpec{"b1", "b3", 0.05},
		edgeSpec{"a1", "b1", 0.3})
	cfg := DefaultConfig(linkType)
	cfg.TwoTriangles = false

	report := resolve(t, m, cfg)
	require.Len(t, report.Splits, 1)
	split := report.Splits[0]
	assert.Greater(t, split.Distance, DefaultHDRT)
	assert.ElementsMatch(t, [][]string{{"a1", "a2", "a3"}, {"b1", "b2", "b3"}}, [][]string{split.Left, split.Right})
	require.Len(t, split.Cut, 1)
	assert.Equal(t, [2]string{"a1", "b1"}, split.Cut[0].Key())
}

func TestAverageLinkage(t *testing.T) {
	d := map[[2]string]float64{
		{"a", "b"}: 0.1,
		{"a", "c"}: 0.5,
		{"b", "c"}: 0.7,
	}
	root := averageLinkage([]string{"a", "b", "c"}, func(x, y string) float64 { return d[graph.PairKey(x, y)] })
	require.NotNil(t, root)
	assert.Equal(t, 3, root.size())
	assert.InDelta(t, 0.6, root.distance, 1e-12)
	assert.InDelta(t, 0.1, root.left.distance, 1e-12)
}

func TestSweep(t *testing.T) {
	m := memoryGraph(t, edgeSpec{"a", "b", 0.1}, edgeSpec{"b", "c", 0.1}, edgeSpec{"c", "d", 0.6})

	t.Run("without truth there is no best setting", func(t *testing.T) {
		r, err := NewResolver(m, nil, DefaultConfig(linkType), testLogger())
		require.NoError(t, err)
		res, err := r.Sweep(context.Background(), DefaultSweepRanges())
		require.NoError(t, err)
		assert.Len(t, res.Reports, 7*6*6)
		assert.Nil(t, res.Best)
		assert.Equal(t, 9, res.Reports[0].MinClusterSize)
		assert.Equal(t, 0.2, res.Reports[0].HDRT)
		assert.Equal(t, 0.1, res.Reports[0].LDRT)
	})

	t.Run("truth picks the best scoring setting", func(t *testing.T) {
		cfg := DefaultConfig(linkType)
		cfg.Truth = func(a, b string) groundtruth.Status {
			if graph.PairKey(a, b) == [2]string{"a", "c"} {
				return groundtruth.TrueMatch
			}
			return groundtruth.NotTrueMatch
		}
		r, err := NewResolver(m, nil, cfg, testLogger())
		require.NoError(t, err)

		res, err := r.Sweep(context.Background(), DefaultSweepRanges())
		require.NoError(t, err)
		require.NotNil(t, res.Best)
		assert.Equal(t, 3, res.Best.MinClusterSize)
		assert.Equal(t, 0.2, res.Best.HDRT)
		assert.Equal(t, 0.25, res.Best.LDRT)
		assert.Equal(t, 2, res.Best.Stats.Score())
		// sweeps never repair
		edges, _ := m.Edges(context.Background(), linkType)
		assert.Len(t, edges, 3)
	})

	t.Run("invalid ranges", func(t *testing.T) {
		r, err := NewResolver(m, nil, DefaultConfig(linkType), testLogger())
		require.NoError(t, err)
		_, err = r.Sweep(context.Background(), SweepRanges{MinClusterFrom: 3, MinClusterTo: 3})
		assert.True(t, errors.IsConfigError(err))
	})
}

func TestSteps(t *testing.T) {
	assert.Equal(t, []float64{0.2, 0.3, 0.4, 0.5, 0.6, 0.7}, steps(0.2, 0.7, 0.1))
	assert.Equal(t, []float64{0.1, 0.15, 0.2, 0.25, 0.3, 0.35}, steps(0.10, 0.35, 0.05))
}
