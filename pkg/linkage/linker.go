package linkage

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/records"
	"github.com/Ramsey-B/clover/pkg/search"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type Strategy string

const (
	// Exhaustive compares every candidate pair.
	Exhaustive Strategy = "exhaustive"
	// SearchAssisted indexes the stored records and queries the index with each query record.
	SearchAssisted Strategy = "search"
)

type QueryMode string

const (
	QueryRange    QueryMode = "range"
	QueryKNearest QueryMode = "knn"
)

// Metric is the record distance a Linker thresholds on.
type Metric interface {
	Name() string
	Distance(a, b records.Record) (float64, error)
}

// StructureFactory builds a search structure over the stored records.
type StructureFactory interface {
	New(data []records.Record) (search.Structure[records.Record], error)
	NewWithPivots(data, pivots []records.Record) (search.Structure[records.Record], error)
}

type Config struct {
	LinkType   string
	StoredRole string
	QueryRole  string
	Threshold  float64
	// Symmetric links a collection with itself. A-B and B-A are the same link and a record never
	// links to itself.
	Symmetric bool
	Strategy  Strategy
	Query     QueryMode
	K         int
	// ProgressUpdates is the number of progress checkpoints reported per run.
	ProgressUpdates int
	// Viable rejects thresholded pairs. Nil accepts everything.
	Viable func(Pair) bool
	// Pivots seeds a pivot index with reference records instead of random draws.
	Pivots []records.Record
	// FieldsPopulated counts the evidence behind a pair, stored on its link.
	FieldsPopulated func(Pair) int
}

// Linker produces link sets from record collections under a distance threshold.
type Linker struct {
	cfg        Config
	metric     Metric
	structures StructureFactory
	logger     ectologger.Logger
}

// NewLinker validates cfg. structures may be nil for exhaustive linkers.
func NewLinker(cfg Config, metric Metric, structures StructureFactory, logger ectologger.Logger) (*Linker, error) {
	if metric == nil {
		return nil, errors.NewConfigError("linkage", "metric is required").AddSetting("measure")
	}
	if cfg.Threshold < 0 {
		return nil, errors.NewConfigError("linkage", fmt.Sprintf("threshold %v is negative", cfg.Threshold)).AddSetting("threshold")
	}
	if cfg.Strategy == "" {
		cfg.Strategy = Exhaustive
	}
	if cfg.Query == "" {
		cfg.Query = QueryRange
	}

	switch cfg.Strategy {
	case Exhaustive:
	case SearchAssisted:
		if structures == nil {
			return nil, errors.NewConfigError("linkage", "search assisted linkage needs a search structure factory").AddSetting("strategy")
		}
		if cfg.Query != QueryRange && cfg.Query != QueryKNearest {
			return nil, errors.NewConfigError("linkage", fmt.Sprintf("unknown query mode '%s'", cfg.Query)).AddSetting("query")
		}
		if cfg.Query == QueryKNearest && cfg.K < 1 {
			return nil, errors.NewConfigError("linkage", "k nearest queries need k >= 1").AddSetting("k")
		}
	default:
		return nil, errors.NewConfigError("linkage", fmt.Sprintf("unknown strategy '%s'", cfg.Strategy)).AddSetting("strategy")
	}

	if cfg.Symmetric && cfg.QueryRole == "" {
		cfg.QueryRole = cfg.StoredRole
	}

	return &Linker{
		cfg:        cfg,
		metric:     metric,
		structures: structures,
		logger:     logger,
	}, nil
}

func (l *Linker) Config() Config {
	return l.cfg
}

// Provenance describes how links from this linker were derived.
func (l *Linker) Provenance() string {
	if l.cfg.Threshold == 0 {
		return "exact match"
	}
	return fmt.Sprintf("%s match at %s", l.cfg.Strategy, strconv.FormatFloat(l.cfg.Threshold, 'g', -1, 64))
}

func (l *Linker) newLink(p Pair) Link {
	link := NewLink(
		Role{RecordID: p.Stored.ID(), RoleType: l.cfg.StoredRole},
		Role{RecordID: p.Query.ID(), RoleType: l.cfg.QueryRole},
		l.cfg.LinkType,
		p.Distance,
		l.Provenance(),
		"distance: "+strconv.FormatFloat(p.Distance, 'g', -1, 64),
	)
	if l.cfg.FieldsPopulated != nil {
		link.FieldsPopulated = l.cfg.FieldsPopulated(p)
	}
	return link
}

func (l *Linker) accept(p Pair) bool {
	if p.Distance > l.cfg.Threshold {
		return false
	}
	if l.cfg.Symmetric && p.Stored.ID() == p.Query.ID() {
		return false
	}
	return l.cfg.Viable == nil || l.cfg.Viable(p)
}

// Link compares stored with query and returns every accepted link. Symmetric linkers ignore query
// and link stored with itself.
func (l *Linker) Link(ctx context.Context, stored, query []records.Record) (*LinkSet, error) {
	ctx, span := tracing.StartSpan(ctx, "linkage.Linker.Link")
	defer span.End()

	log := l.logger.WithContext(ctx).WithFields(map[string]any{
		"link_type": l.cfg.LinkType,
		"strategy":  string(l.cfg.Strategy),
		"threshold": l.cfg.Threshold,
		"measure":   l.metric.Name(),
	})

	set := NewLinkSet(l.cfg.Symmetric)
	err := l.pairs(ctx, stored, query, func(p Pair) {
		if set.Add(l.newLink(p)) {
			metrics.RecordLinkAccepted(l.cfg.LinkType, string(l.cfg.Strategy))
		}
	})
	if err != nil {
		log.WithError(err).Error("Failed to link records")
		tracing.RecordError(ctx, err)
		return nil, err
	}

	log.WithField("links", set.Len()).Info("Linkage complete")
	return set, nil
}

// LinkList is the accepted links of one query record, nearest first.
type LinkList struct {
	QueryID string
	Links   []Link
}

// Lists groups accepted links by query record, in query order. Records without links are omitted.
func (l *Linker) Lists(ctx context.Context, stored, query []records.Record) ([]LinkList, error) {
	ctx, span := tracing.StartSpan(ctx, "linkage.Linker.Lists")
	defer span.End()

	byQuery := map[string]*LinkList{}
	var order []string
	err := l.pairs(ctx, stored, query, func(p Pair) {
		id := p.Query.ID()
		list, ok := byQuery[id]
		if !ok {
			list = &LinkList{QueryID: id}
			byQuery[id] = list
			order = append(order, id)
		}
		list.Links = append(list.Links, l.newLink(p))
	})
	if err != nil {
		return nil, err
	}

	out := make([]LinkList, 0, len(order))
	for _, id := range order {
		list := byQuery[id]
		sort.SliceStable(list.Links, func(i, j int) bool {
			return list.Links[i].Distance < list.Links[j].Distance
		})
		out = append(out, *list)
	}
	return out, nil
}

// ClosestOnly keeps, for each list, every link at the list's smallest distance.
func ClosestOnly(lists []LinkList) []Link {
	var out []Link
	for _, list := range lists {
		if len(list.Links) == 0 {
			continue
		}
		closest := list.Links[0].Distance
		for _, link := range list.Links {
			if link.Distance < closest {
				closest = link.Distance
			}
		}
		for _, link := range list.Links {
			if link.Distance == closest {
				out = append(out, link)
			}
		}
	}
	return out
}

func (l *Linker) pairs(ctx context.Context, stored, query []records.Record, emit func(Pair)) error {
	if l.cfg.Symmetric {
		query = stored
	}
	if l.cfg.Strategy == SearchAssisted {
		return l.searchPairs(ctx, stored, query, emit)
	}
	return l.exhaustivePairs(stored, query, emit)
}

func (l *Linker) exhaustivePairs(stored, query []records.Record, emit func(Pair)) error {
	progress := NewProgressIndicator(l.cfg.LinkType, l.cfg.ProgressUpdates, l.logger)
	progress.SetTotal(len(query))

	for qi, q := range query {
		start := 0
		if l.cfg.Symmetric {
			start = qi + 1
		}
		for _, s := range stored[start:] {
			d, err := l.metric.Distance(s, q)
			if err != nil {
				return fmt.Errorf("failed to measure records '%s' and '%s': %w", s.ID(), q.ID(), err)
			}
			if p := (Pair{Stored: s, Query: q, Distance: d}); l.accept(p) {
				emit(p)
			}
		}
		progress.Step()
	}
	return nil
}

func (l *Linker) searchPairs(ctx context.Context, stored, query []records.Record, emit func(Pair)) error {
	log := l.logger.WithContext(ctx).WithFields(map[string]any{
		"link_type": l.cfg.LinkType,
		"stored":    len(stored),
		"query":     len(query),
	})

	var (
		structure search.Structure[records.Record]
		err       error
	)
	if len(l.cfg.Pivots) > 0 {
		structure, err = l.structures.NewWithPivots(stored, l.cfg.Pivots)
	} else {
		structure, err = l.structures.New(stored)
	}
	if err != nil {
		return fmt.Errorf("failed to build search structure: %w", err)
	}
	defer func() {
		if err := structure.Terminate(); err != nil {
			log.WithError(err).Error("Failed to terminate search structure")
		}
	}()

	progress := NewProgressIndicator(l.cfg.LinkType, l.cfg.ProgressUpdates, l.logger)
	progress.SetTotal(len(query))

	for _, q := range query {
		var results []search.Result[records.Record]
		switch l.cfg.Query {
		case QueryKNearest:
			results, err = structure.KNearest(q, l.cfg.K)
		default:
			results, err = structure.RangeSearch(q, l.cfg.Threshold)
		}
		if err != nil {
			return fmt.Errorf("search for record '%s' failed: %w", q.ID(), err)
		}

		for _, r := range results {
			if p := (Pair{Stored: r.Value, Query: q, Distance: r.Distance}); l.accept(p) {
				emit(p)
			}
		}
		progress.Step()
	}
	return nil
}
