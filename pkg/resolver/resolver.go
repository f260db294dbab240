// Package resolver finds logically inconsistent structure in a graph of accepted links and
// reports or repairs it.
//
// A pass reads a snapshot of the edges of one link type, splits it into connected clusters and
// examines the triangles of every qualifying cluster against two distance-ratio thresholds:
// LDRT, below which a pair of links is trusted, and HDRT, above which it is doubted.
package resolver

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/groundtruth"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	DefaultLDRT             = 0.2
	DefaultHDRT             = 0.5
	DefaultSupportThreshold = 2
	DefaultMinClusterSize   = 2

	// MissingDistance is used for unlinked pairs during hierarchical analysis when no distance
	// function is configured.
	MissingDistance = 1.0

	OpenTriangleProvenance = "open-triangle-processing"
	TwoTriangleProvenance  = "two-triangle-processing"
)

// GraphReader reads a snapshot of the edges of one link type.
type GraphReader interface {
	Edges(ctx context.Context, linkType string) ([]graph.Edge, error)
}

// GraphWriter applies repairs.
type GraphWriter interface {
	AddEdge(ctx context.Context, e graph.Edge) error
	RemoveEdge(ctx context.Context, linkType, from, to string, provenance []string) error
}

// Mode selects whether actions are applied.
type Mode string

const (
	ModeReport Mode = "report"
	ModeRepair Mode = "repair"
)

// TruthFunc tells whether two nodes truly belong together. It scores proposed actions.
type TruthFunc func(a, b string) groundtruth.Status

// Config holds the parameters of a resolution pass
type Config struct {
	LinkType string
	Pattern  Pattern
	Mode     Mode
	// Clusters with no more nodes than MinClusterSize are skipped.
	MinClusterSize int
	Thresholds
	Hierarchical bool
	TwoTriangles bool
	// Distance supplies distances for added edges and unlinked pairs. Optional.
	Distance func(a, b string) (float64, bool)
	Truth    TruthFunc
}

// DefaultConfig returns a report-mode configuration for linkType.
func DefaultConfig(linkType string) Config {
	return Config{
		LinkType:       linkType,
		Pattern:        PatternOpen,
		Mode:           ModeReport,
		MinClusterSize: DefaultMinClusterSize,
		Thresholds: Thresholds{
			LDRT:             DefaultLDRT,
			HDRT:             DefaultHDRT,
			SupportThreshold: DefaultSupportThreshold,
		},
		Hierarchical: true,
		TwoTriangles: true,
	}
}

func (c Config) validate() error {
	if c.LinkType == "" {
		return errors.NewConfigError("resolver", "link type is required").AddSetting("link_type")
	}
	if c.LDRT < 0 || c.HDRT < 0 {
		return errors.NewConfigError("resolver", fmt.Sprintf("thresholds must not be negative (ldrt=%v, hdrt=%v)", c.LDRT, c.HDRT)).AddSetting("ldrt")
	}
	if c.Pattern != PatternOpen && c.Pattern != PatternAll {
		return errors.NewConfigError("resolver", fmt.Sprintf("unknown triangle pattern '%s'", c.Pattern)).AddSetting("pattern")
	}
	if c.Mode != ModeReport && c.Mode != ModeRepair {
		return errors.NewConfigError("resolver", fmt.Sprintf("unknown mode '%s'", c.Mode)).AddSetting("mode")
	}
	return nil
}

// Action is a classification outcome that names an edge.
type Action struct {
	Kind     Classification `json:"kind"`
	From     string         `json:"from"`
	To       string         `json:"to"`
	Distance float64        `json:"distance"`
	Source   string         `json:"source"`
	Applied  bool           `json:"applied"`
}

// Stats counts what a pass saw and did.
type Stats struct {
	Clusters           int `json:"clusters"`
	Examined           int `json:"examined"`
	Skipped            int `json:"skipped"`
	MissingDistance    int `json:"missing_distance"`
	OpenTriangles      int `json:"open_triangles"`
	ClosedTriangles    int `json:"closed_triangles"`
	Consistent         int `json:"consistent"`
	InconsistentClosed int `json:"inconsistent_closed"`
	Added              int `json:"added"`
	Removed            int `json:"removed"`
	Unresolved         int `json:"unresolved"`
	Degenerate         int `json:"degenerate"`
	Splits             int `json:"splits"`
	TwoTriangles       int `json:"two_triangles"`
	Correct            int `json:"correct"`
	Incorrect          int `json:"incorrect"`
}

// Score is the number of correct actions less the number of incorrect ones.
func (s Stats) Score() int {
	return s.Correct - s.Incorrect
}

// Report is the outcome of one pass.
type Report struct {
	MinClusterSize int            `json:"min_cluster_size"`
	LDRT           float64        `json:"ldrt"`
	HDRT           float64        `json:"hdrt"`
	Stats          Stats          `json:"stats"`
	Actions        []Action       `json:"actions"`
	Splits         []Split        `json:"splits,omitempty"`
	TwoTriangles   []TwoTriangles `json:"-"`
}

// Resolver runs resolution passes over one link type.
type Resolver struct {
	reader GraphReader
	writer GraphWriter
	cfg    Config
	logger ectologger.Logger
}

// NewResolver creates a resolver. writer may be nil in report mode.
func NewResolver(reader GraphReader, writer GraphWriter, cfg Config, logger ectologger.Logger) (*Resolver, error) {
	if cfg.Pattern == "" {
		cfg.Pattern = PatternOpen
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeReport
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if reader == nil {
		return nil, errors.NewConfigError("resolver", "graph reader is required")
	}
	if cfg.Mode == ModeRepair && writer == nil {
		return nil, errors.NewConfigError("resolver", "repair mode needs a graph writer").AddSetting("mode")
	}
	return &Resolver{
		reader: reader,
		writer: writer,
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (r *Resolver) Config() Config {
	return r.cfg
}

// Resolve runs one pass. A graph read failure aborts the pass and wraps errors.ErrGraphRead.
func (r *Resolver) Resolve(ctx context.Context) (*Report, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.Resolve")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"link_type":        r.cfg.LinkType,
		"pattern":          r.cfg.Pattern,
		"mode":             r.cfg.Mode,
		"min_cluster_size": r.cfg.MinClusterSize,
		"ldrt":             r.cfg.LDRT,
		"hdrt":             r.cfg.HDRT,
	})

	snap, err := r.read(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to read link graph")
		return nil, err
	}

	report := analyse(snap, r.cfg)
	if r.cfg.Mode == ModeRepair {
		if err := r.apply(ctx, report); err != nil {
			log.WithError(err).Error("Failed to apply resolution actions")
			return report, err
		}
	}
	for _, a := range report.Actions {
		metrics.RecordResolverAction(r.cfg.LinkType, string(a.Kind))
	}

	log.WithFields(map[string]any{
		"clusters": report.Stats.Clusters,
		"examined": report.Stats.Examined,
		"added":    report.Stats.Added,
		"removed":  report.Stats.Removed,
	}).Info("Resolution pass complete")
	return report, nil
}

func (r *Resolver) read(ctx context.Context) (*snapshot, error) {
	edges, err := r.reader.Edges(ctx, r.cfg.LinkType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrGraphRead, err)
	}
	return newSnapshot(edges), nil
}

func (r *Resolver) apply(ctx context.Context, report *Report) error {
	for i := range report.Actions {
		a := &report.Actions[i]
		var err error
		switch a.Kind {
		case AddEdge:
			err = r.writer.AddEdge(ctx, graph.Edge{
				From:        a.From,
				To:          a.To,
				LinkType:    r.cfg.LinkType,
				Distance:    a.Distance,
				HasDistance: true,
				Provenance:  []string{a.Source},
			})
		case RemoveEdge:
			err = r.writer.RemoveEdge(ctx, r.cfg.LinkType, a.From, a.To, []string{a.Source})
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to apply %s %s-%s: %w", a.Kind, a.From, a.To, err)
		}
		a.Applied = true
	}
	return nil
}

// analyse examines a snapshot without touching the graph.
func analyse(snap *snapshot, cfg Config) *Report {
	report := &Report{MinClusterSize: cfg.MinClusterSize, LDRT: cfg.LDRT, HDRT: cfg.HDRT}
	proposed := map[[2]string]bool{}
	propose := func(kind Classification, pair [2]string, distance float64, source string) {
		if proposed[pair] {
			return
		}
		proposed[pair] = true
		report.Actions = append(report.Actions, Action{Kind: kind, From: pair[0], To: pair[1], Distance: distance, Source: source})
		switch kind {
		case AddEdge:
			report.Stats.Added++
		case RemoveEdge:
			report.Stats.Removed++
		}
		if cfg.Truth != nil {
			scoreAction(&report.Stats, kind, cfg.Truth(pair[0], pair[1]))
		}
	}

	for _, c := range snap.components() {
		report.Stats.Clusters++
		if len(c.nodes) < 3 || len(c.nodes) <= cfg.MinClusterSize {
			report.Stats.Skipped++
			continue
		}
		if !c.hasDistances() {
			report.Stats.Skipped++
			report.Stats.MissingDistance++
			continue
		}
		report.Stats.Examined++

		for _, t := range snap.triangles(c, cfg.Pattern) {
			if t.Closed {
				report.Stats.ClosedTriangles++
				kind, disputed := ClassifyClosed(t, cfg.Thresholds)
				if kind == Consistent {
					report.Stats.Consistent++
					continue
				}
				report.Stats.InconsistentClosed++
				e, _ := snap.edge(disputed[0], disputed[1])
				report.Actions = append(report.Actions, Action{Kind: kind, From: disputed[0], To: disputed[1], Distance: e.Distance, Source: "closed-triangle"})
				continue
			}

			report.Stats.OpenTriangles++
			kind, pair := ClassifyOpen(t, snap.shared(t.X, t.Z), cfg.Thresholds)
			switch kind {
			case AddEdge:
				propose(kind, pair, addedDistance(cfg, t.X, t.Z, t.XY+t.YZ), OpenTriangleProvenance)
			case RemoveEdge:
				e, _ := snap.edge(pair[0], pair[1])
				propose(kind, pair, e.Distance, OpenTriangleProvenance)
			case Unresolved:
				report.Stats.Unresolved++
			case Degenerate:
				report.Stats.Degenerate++
			}
		}

		if cfg.TwoTriangles {
			for _, tt := range snap.twoTriangles(snap.closedTriangles(c)) {
				report.Stats.TwoTriangles++
				report.TwoTriangles = append(report.TwoTriangles, tt)
				if tt.Low(cfg.Thresholds) {
					propose(AddEdge, graph.PairKey(tt.MissingFrom, tt.MissingTo),
						addedDistance(cfg, tt.MissingFrom, tt.MissingTo, tt.T1S1+tt.T2S2), TwoTriangleProvenance)
				}
			}
		}

		if cfg.Hierarchical {
			root := averageLinkage(c.nodes, pairDistance(snap, cfg))
			splits := snap.splits(root, cfg.Thresholds)
			report.Splits = append(report.Splits, splits...)
			report.Stats.Splits += len(splits)
		}
	}
	return report
}

func addedDistance(cfg Config, a, b string, fallback float64) float64 {
	if cfg.Distance != nil {
		if d, ok := cfg.Distance(a, b); ok {
			return d
		}
	}
	return fallback
}

func pairDistance(snap *snapshot, cfg Config) func(a, b string) float64 {
	return func(a, b string) float64 {
		if e, ok := snap.edge(a, b); ok {
			return e.Distance
		}
		return addedDistance(cfg, a, b, MissingDistance)
	}
}

func scoreAction(stats *Stats, kind Classification, truth groundtruth.Status) {
	switch {
	case truth == groundtruth.Unknown:
	case kind == AddEdge && truth == groundtruth.TrueMatch,
		kind == RemoveEdge && truth == groundtruth.NotTrueMatch:
		stats.Correct++
	default:
		stats.Incorrect++
	}
}

type teeWriter []GraphWriter

// Tee applies every repair to each writer in turn, stopping at the first failure.
func Tee(writers ...GraphWriter) GraphWriter {
	return teeWriter(writers)
}

func (t teeWriter) AddEdge(ctx context.Context, e graph.Edge) error {
	for _, w := range t {
		if err := w.AddEdge(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (t teeWriter) RemoveEdge(ctx context.Context, linkType, from, to string, provenance []string) error {
	for _, w := range t {
		if err := w.RemoveEdge(ctx, linkType, from, to, provenance); err != nil {
			return err
		}
	}
	return nil
}
