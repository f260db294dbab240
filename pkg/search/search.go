// Package search provides metric-space indexes answering range and k-nearest queries: an exact
// M-tree, an approximate parallel pivot index and a linear scan.
package search

import (
	"errors"
	"sort"
	"sync/atomic"
)

var (
	// ErrEmpty is returned when querying a structure that holds no objects.
	ErrEmpty = errors.New("search structure is empty")
	// ErrTerminated is returned when a structure is used or terminated after Terminate.
	ErrTerminated = errors.New("search structure already terminated")
	// ErrIndexBuild is wrapped by every pivot index construction failure.
	ErrIndexBuild = errors.New("pivot index build failed")
	// ErrInvalidK is returned for k-nearest queries with k < 1.
	ErrInvalidK = errors.New("k must be at least 1")
)

// Metric is a distance between two objects. Search structures assume it satisfies the
// triangle inequality.
type Metric[T any] interface {
	Distance(a, b T) (float64, error)
}

// MetricFunc adapts a function to Metric.
type MetricFunc[T any] func(a, b T) (float64, error)

func (f MetricFunc[T]) Distance(a, b T) (float64, error) {
	return f(a, b)
}

// Result is one object found by a query.
type Result[T any] struct {
	Value    T
	Distance float64
	// Order is the insertion position of Value, used to break distance ties.
	Order int
}

// Structure indexes a collection for similarity queries. Terminate must be called exactly once
// after the last query.
type Structure[T any] interface {
	// RangeSearch returns every object within threshold of query, nearest first.
	RangeSearch(query T, threshold float64) ([]Result[T], error)
	// KNearest returns the k nearest objects, ties broken by insertion order.
	KNearest(query T, k int) ([]Result[T], error)
	Terminate() error
}

func sortResults[T any](rs []Result[T]) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Distance != rs[j].Distance {
			return rs[i].Distance < rs[j].Distance
		}
		return rs[i].Order < rs[j].Order
	})
}

// lifecycle enforces the exactly-once termination contract.
type lifecycle struct {
	terminated atomic.Bool
}

func (l *lifecycle) check() error {
	if l.terminated.Load() {
		return ErrTerminated
	}
	return nil
}

func (l *lifecycle) terminate() error {
	if !l.terminated.CompareAndSwap(false, true) {
		return ErrTerminated
	}
	return nil
}

// Linear answers queries by comparing the query with every object.
type Linear[T any] struct {
	metric Metric[T]
	data   []T
	life   lifecycle
}

func NewLinear[T any](metric Metric[T], data []T) *Linear[T] {
	return &Linear[T]{
		metric: metric,
		data:   append([]T(nil), data...),
	}
}

func (l *Linear[T]) RangeSearch(query T, threshold float64) ([]Result[T], error) {
	if err := l.life.check(); err != nil {
		return nil, err
	}

	var out []Result[T]
	for i, o := range l.data {
		d, err := l.metric.Distance(query, o)
		if err != nil {
			return nil, err
		}
		if d <= threshold {
			out = append(out, Result[T]{Value: o, Distance: d, Order: i})
		}
	}
	sortResults(out)
	return out, nil
}

func (l *Linear[T]) KNearest(query T, k int) ([]Result[T], error) {
	if err := l.life.check(); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, ErrInvalidK
	}

	all := make([]Result[T], 0, len(l.data))
	for i, o := range l.data {
		d, err := l.metric.Distance(query, o)
		if err != nil {
			return nil, err
		}
		all = append(all, Result[T]{Value: o, Distance: d, Order: i})
	}
	sortResults(all)
	if len(all) > k {
		all = all[:k]
	}
	return all, nil
}

func (l *Linear[T]) Terminate() error {
	return l.life.terminate()
}
