// Package quality measures produced links against ground truth.
package quality

import (
	"context"
	"fmt"
	"runtime"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/groundtruth"
	"github.com/Ramsey-B/clover/pkg/linkage"
	"github.com/Ramsey-B/clover/pkg/records"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Resolver finds the record behind a link role.
type Resolver interface {
	Resolve(id string) (records.Record, bool)
}

// Result holds the counts and derived measures of one evaluation.
type Result struct {
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Unknown        int     `json:"unknown"`
	Unresolved     int     `json:"unresolved"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
}

// NewResult derives precision, recall and F1 from counts. Each is 0 when its denominator is 0.
func NewResult(tp, fp, fn int) Result {
	r := Result{TruePositives: tp, FalsePositives: fp, FalseNegatives: fn}
	if tp+fp > 0 {
		r.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		r.Recall = float64(tp) / float64(tp+fn)
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	return r
}

func (r Result) String() string {
	return fmt.Sprintf("TP=%d FP=%d FN=%d precision=%.4f recall=%.4f f1=%.4f",
		r.TruePositives, r.FalsePositives, r.FalseNegatives, r.Precision, r.Recall, r.F1)
}

// Evaluator classifies links with a ground truth oracle. The first role of a link is resolved
// against the stored records and the second against the query records, so the two collections
// may reuse ids.
type Evaluator struct {
	oracle  groundtruth.Oracle
	stored  Resolver
	query   Resolver
	workers int
	logger  ectologger.Logger
}

// NewEvaluator builds an evaluator. workers <= 0 uses one worker per CPU. Symmetric linkage
// passes the same resolver twice.
func NewEvaluator(oracle groundtruth.Oracle, stored, query Resolver, workers int, logger ectologger.Logger) *Evaluator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Evaluator{
		oracle:  oracle,
		stored:  stored,
		query:   query,
		workers: workers,
		logger:  logger,
	}
}

func resolve(r Resolver, role linkage.Role) (records.Record, error) {
	rec, ok := r.Resolve(role.RecordID)
	if !ok {
		return nil, errors.WrapDataError(role.RecordID, errors.ErrUnresolvedRecord)
	}
	return rec, nil
}

// Classify resolves both records of every link and asks the oracle about them. A link whose
// records cannot be resolved gets a non-nil skipped entry wrapping errors.ErrUnresolvedRecord.
func (e *Evaluator) Classify(ctx context.Context, links []linkage.Link) (statuses []groundtruth.Status, skipped []error, err error) {
	statuses = make([]groundtruth.Status, len(links))
	skipped = make([]error, len(links))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, link := range links {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, err := resolve(e.stored, link.Role1)
			if err != nil {
				skipped[i] = err
				return nil
			}
			b, err := resolve(e.query, link.Role2)
			if err != nil {
				skipped[i] = err
				return nil
			}
			statuses[i] = e.oracle.IsTrueMatch(a, b)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return statuses, skipped, nil
}

// Evaluate counts true and false positives among links. Unknown ground truth counts as a false
// positive. totalTrue is the number of true links in the ground truth.
func (e *Evaluator) Evaluate(ctx context.Context, links []linkage.Link, totalTrue int) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "quality.Evaluator.Evaluate")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"links":      len(links),
		"total_true": totalTrue,
	})

	statuses, skipped, err := e.Classify(ctx, links)
	if err != nil {
		log.WithError(err).Error("Failed to evaluate links")
		return Result{}, fmt.Errorf("failed to evaluate links: %w", err)
	}

	res := count(statuses, skipped, totalTrue)
	if res.Unresolved > 0 {
		log.WithError(firstError(skipped)).WithField("unresolved", res.Unresolved).Warn("Skipped links with unresolved records")
	}
	if res.FalseNegatives < 0 {
		log.WithField("true_positives", res.TruePositives).Warn("More true positives than true links in the ground truth")
	}
	log.Info(res.String())
	return res, nil
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// count tallies classified links. FN is totalTrue - TP and goes negative when the ground truth
// count is inconsistent with the oracle.
func count(statuses []groundtruth.Status, skipped []error, totalTrue int) Result {
	var tp, fp, unknown, unresolved int
	for i, s := range statuses {
		if skipped[i] != nil {
			unresolved++
			continue
		}
		switch s {
		case groundtruth.TrueMatch:
			tp++
		case groundtruth.Unknown:
			unknown++
			fp++
		default:
			fp++
		}
	}

	res := NewResult(tp, fp, totalTrue-tp)
	res.Unknown = unknown
	res.Unresolved = unresolved
	return res
}

// ThresholdResult is the quality of the links at or below one threshold.
type ThresholdResult struct {
	Threshold float64 `json:"threshold"`
	Links     int     `json:"links"`
	Result
}

// SweepConfig describes the thresholds of a sweep: 0, Step, 2*Step, ... up to Max.
type SweepConfig struct {
	Step float64
	Max  float64
	// MinFieldsPopulated ignores links backed by fewer jointly populated fields.
	MinFieldsPopulated int
}

// Sweep classifies links once and reports quality for every threshold in cfg.
func (e *Evaluator) Sweep(ctx context.Context, links []linkage.Link, totalTrue int, cfg SweepConfig) ([]ThresholdResult, error) {
	ctx, span := tracing.StartSpan(ctx, "quality.Evaluator.Sweep")
	defer span.End()

	if cfg.Step <= 0 {
		return nil, fmt.Errorf("sweep step must be positive, got %v", cfg.Step)
	}

	statuses, skipped, err := e.Classify(ctx, links)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate links: %w", err)
	}

	var out []ThresholdResult
	n := int(cfg.Max/cfg.Step + 1e-9)
	for i := 0; i <= n; i++ {
		threshold := float64(i) * cfg.Step
		var (
			sub        []groundtruth.Status
			subSkipped []error
		)
		for j, link := range links {
			if link.Distance > threshold || link.FieldsPopulated < cfg.MinFieldsPopulated {
				continue
			}
			sub = append(sub, statuses[j])
			subSkipped = append(subSkipped, skipped[j])
		}
		out = append(out, ThresholdResult{Threshold: threshold, Links: len(sub), Result: count(sub, subSkipped, totalTrue)})
	}

	e.logger.WithContext(ctx).WithField("thresholds", len(out)).Debug("Threshold sweep complete")
	return out, nil
}
