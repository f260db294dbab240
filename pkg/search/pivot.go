package search

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/metrics"
)

const (
	// DefaultPivots is the number of reference objects drawn when none are supplied.
	DefaultPivots = 70
	// DefaultSeed seeds pivot sampling.
	DefaultSeed int64 = 34258723425
	// RandomPivotAttempts bounds construction with randomly drawn pivots.
	RandomPivotAttempts = 5
	// SuppliedPivotAttempts bounds construction starting from caller supplied pivots.
	SuppliedPivotAttempts = 4
)

// FourPointMetric is implemented by metrics whose space has the four-point property.
type FourPointMetric interface {
	FourPoint() bool
}

// PivotConfig holds pivot index construction settings.
type PivotConfig struct {
	Pivots  int   // reference objects to draw, DefaultPivots when zero
	Seed    int64 // pivot sampling seed, DefaultSeed when zero
	Workers int   // worker goroutines, runtime.NumCPU when zero
}

// NextSeed derives the seed for the next construction attempt.
func NextSeed(seed int64) int64 {
	return seed*17 + 23
}

// ChoosePivots draws n distinct objects uniformly without replacement.
func ChoosePivots[T any](data []T, n int, seed int64) []T {
	if n > len(data) {
		n = len(data)
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(data))

	pivots := make([]T, n)
	for i := 0; i < n; i++ {
		pivots[i] = data[perm[i]]
	}
	return pivots
}

type pivotPair struct {
	a, b int
	dist float64
}

// PivotIndex is an approximate metric index. Every object's distance to a fixed set of pivots is
// precomputed; queries exclude objects whose pivot lower bound exceeds the threshold and measure
// the survivors in parallel. Four-point metrics additionally use planar projections over pivot
// pairs.
type PivotIndex[T any] struct {
	metric    Metric[T]
	data      []T
	pivots    []T
	fourPoint bool
	pairs     []pivotPair
	table     [][]float64    // table[i][p] = d(data[i], pivots[p])
	planar    [][][2]float64 // planar[i][k] = projection of data[i] onto pair k
	pool      *workerPool
	logger    ectologger.Logger
	life      lifecycle

	// buildCheck lets tests fail chosen attempts.
	buildCheck func(attempt int) error
}

type PivotOption[T any] func(*PivotIndex[T])

// withBuildCheck installs a hook run before each build attempt.
func withBuildCheck[T any](check func(attempt int) error) PivotOption[T] {
	return func(idx *PivotIndex[T]) {
		idx.buildCheck = check
	}
}

// NewPivotIndex builds an index over a copy of data with randomly drawn pivots.
func NewPivotIndex[T any](metric Metric[T], data []T, cfg PivotConfig, logger ectologger.Logger, opts ...PivotOption[T]) (*PivotIndex[T], error) {
	return newPivotIndex(metric, data, nil, cfg, logger, opts...)
}

// NewPivotIndexWithPivots builds an index starting from the supplied pivots. Failed attempts
// fall back to random pivots drawn with successive seeds.
func NewPivotIndexWithPivots[T any](metric Metric[T], data, pivots []T, cfg PivotConfig, logger ectologger.Logger, opts ...PivotOption[T]) (*PivotIndex[T], error) {
	if len(pivots) == 0 {
		return nil, errors.NewConfigError("search", "supplied pivot list is empty").AddSetting("pivots")
	}
	return newPivotIndex(metric, data, append([]T(nil), pivots...), cfg, logger, opts...)
}

func newPivotIndex[T any](metric Metric[T], data, supplied []T, cfg PivotConfig, logger ectologger.Logger, opts ...PivotOption[T]) (*PivotIndex[T], error) {
	if len(data) == 0 {
		return nil, errors.NewConfigErrorf("search", "cannot index an empty collection: %w", ErrEmpty)
	}
	if cfg.Pivots <= 0 {
		cfg.Pivots = DefaultPivots
	}
	if cfg.Seed == 0 {
		cfg.Seed = DefaultSeed
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	idx := &PivotIndex[T]{
		metric: metric,
		data:   append([]T(nil), data...),
		logger: logger,
	}
	if fp, ok := metric.(FourPointMetric); ok && fp.FourPoint() {
		idx.fourPoint = true
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.pool = newWorkerPool(cfg.Workers)

	maxAttempts := RandomPivotAttempts
	if supplied != nil {
		maxAttempts = SuppliedPivotAttempts
	}

	seed := cfg.Seed
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		pivots := supplied
		if pivots == nil || attempt > 1 {
			pivots = ChoosePivots(idx.data, cfg.Pivots, seed)
		}

		log := logger.WithFields(map[string]any{
			"attempt":    attempt,
			"seed":       seed,
			"pivots":     len(pivots),
			"objects":    len(idx.data),
			"four_point": idx.fourPoint,
		})

		err := idx.build(attempt, pivots)
		metrics.RecordIndexBuild(err == nil)
		if err == nil {
			log.Debug("Built pivot index")
			return idx, nil
		}

		lastErr = err
		log.WithError(err).Warnf("Pivot index build attempt %d/%d failed", attempt, maxAttempts)
		seed = NextSeed(seed)
	}

	idx.pool.stop()
	logger.WithError(lastErr).Errorf("Pivot index build failed after %d attempts", maxAttempts)
	return nil, errors.NewConfigErrorf("search", "pivot index build failed after %d attempts: %w", maxAttempts, lastErr).AddSetting("pivots")
}

func (idx *PivotIndex[T]) build(attempt int, pivots []T) error {
	if idx.buildCheck != nil {
		if err := idx.buildCheck(attempt); err != nil {
			return fmt.Errorf("%w: %w", ErrIndexBuild, err)
		}
	}

	var pairs []pivotPair
	if idx.fourPoint {
		for a := 0; a+1 < len(pivots); a += 2 {
			d, err := idx.metric.Distance(pivots[a], pivots[a+1])
			if err != nil {
				return fmt.Errorf("%w: %w", ErrIndexBuild, err)
			}
			if err := checkDistance(d); err != nil {
				return err
			}
			if d == 0 {
				return fmt.Errorf("%w: coincident pivots %d and %d", ErrIndexBuild, a, a+1)
			}
			pairs = append(pairs, pivotPair{a: a, b: a + 1, dist: d})
		}
	}

	table := make([][]float64, len(idx.data))
	var planar [][][2]float64
	if idx.fourPoint {
		planar = make([][][2]float64, len(idx.data))
	}

	err := idx.pool.parallelFor(len(idx.data), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			row := make([]float64, len(pivots))
			for p, pivot := range pivots {
				d, err := idx.metric.Distance(idx.data[i], pivot)
				if err != nil {
					return fmt.Errorf("%w: %w", ErrIndexBuild, err)
				}
				if err := checkDistance(d); err != nil {
					return err
				}
				row[p] = d
			}
			table[i] = row
			if planar != nil {
				planar[i] = project(row, pairs)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	idx.pivots = pivots
	idx.pairs = pairs
	idx.table = table
	idx.planar = planar
	return nil
}

func checkDistance(d float64) error {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return fmt.Errorf("%w: invalid distance %v", ErrIndexBuild, d)
	}
	return nil
}

// project places an object in the plane of each pivot pair from its distances to both pivots.
func project(row []float64, pairs []pivotPair) [][2]float64 {
	out := make([][2]float64, len(pairs))
	for k, pp := range pairs {
		d1, d2 := row[pp.a], row[pp.b]
		x := (d1*d1 - d2*d2 + pp.dist*pp.dist) / (2 * pp.dist)
		y := math.Sqrt(math.Max(0, d1*d1-x*x))
		out[k] = [2]float64{x, y}
	}
	return out
}

// Pivots returns the reference objects the index was built with.
func (idx *PivotIndex[T]) Pivots() []T {
	return idx.pivots
}

// excluded reports whether object i cannot be within threshold of a query with pivot distances qrow.
func (idx *PivotIndex[T]) excluded(i int, qrow []float64, qplanar [][2]float64, threshold float64) bool {
	row := idx.table[i]
	for p, qd := range qrow {
		if math.Abs(qd-row[p]) > threshold {
			return true
		}
	}
	for k, q := range qplanar {
		o := idx.planar[i][k]
		dx, dy := q[0]-o[0], q[1]-o[1]
		if math.Sqrt(dx*dx+dy*dy) > threshold {
			return true
		}
	}
	return false
}

func (idx *PivotIndex[T]) queryRow(query T) ([]float64, [][2]float64, error) {
	qrow := make([]float64, len(idx.pivots))
	err := idx.pool.parallelFor(len(idx.pivots), func(lo, hi int) error {
		for p := lo; p < hi; p++ {
			d, err := idx.metric.Distance(query, idx.pivots[p])
			if err != nil {
				return err
			}
			qrow[p] = d
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var qplanar [][2]float64
	if idx.fourPoint {
		qplanar = project(qrow, idx.pairs)
	}
	return qrow, qplanar, nil
}

func (idx *PivotIndex[T]) RangeSearch(query T, threshold float64) ([]Result[T], error) {
	if err := idx.life.check(); err != nil {
		return nil, err
	}
	start := time.Now()

	qrow, qplanar, err := idx.queryRow(query)
	if err != nil {
		return nil, fmt.Errorf("failed to measure query against pivots: %w", err)
	}

	var (
		mu       sync.Mutex
		out      []Result[T]
		excluded int
	)
	err = idx.pool.parallelFor(len(idx.data), func(lo, hi int) error {
		var local []Result[T]
		skipped := 0
		for i := lo; i < hi; i++ {
			if idx.excluded(i, qrow, qplanar, threshold) {
				skipped++
				continue
			}
			d, err := idx.metric.Distance(query, idx.data[i])
			if err != nil {
				return err
			}
			if d <= threshold {
				local = append(local, Result[T]{Value: idx.data[i], Distance: d, Order: i})
			}
		}
		mu.Lock()
		out = append(out, local...)
		excluded += skipped
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("range search failed: %w", err)
	}

	sortResults(out)
	metrics.RecordPruning(excluded, len(idx.data))
	metrics.RecordQuery("pivot", "range", time.Since(start).Seconds())
	return out, nil
}

// KNearest measures every object in parallel and keeps the k nearest.
func (idx *PivotIndex[T]) KNearest(query T, k int) ([]Result[T], error) {
	if err := idx.life.check(); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, ErrInvalidK
	}
	start := time.Now()

	all := make([]Result[T], len(idx.data))
	err := idx.pool.parallelFor(len(idx.data), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			d, err := idx.metric.Distance(query, idx.data[i])
			if err != nil {
				return err
			}
			all[i] = Result[T]{Value: idx.data[i], Distance: d, Order: i}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("nearest neighbour search failed: %w", err)
	}

	sortResults(all)
	if len(all) > k {
		all = all[:k]
	}
	metrics.RecordQuery("pivot", "knn", time.Since(start).Seconds())
	return all, nil
}

// Terminate stops the worker pool. It must be called exactly once, after the last query.
func (idx *PivotIndex[T]) Terminate() error {
	if err := idx.life.terminate(); err != nil {
		return err
	}
	idx.pool.stop()
	return nil
}
