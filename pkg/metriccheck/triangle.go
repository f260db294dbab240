// Package metriccheck samples record triples to detect measures that break the triangle
// inequality, which metric search structures rely on.
package metriccheck

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/search"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	DefaultEpsilon           = 1e-7
	DefaultSeed        int64 = 34553543456223
	DefaultReportEvery       = 1000000
)

type Config struct {
	// Samples is the number of triples to check. Zero runs until the context is cancelled.
	Samples     int
	Epsilon     float64
	Seed        int64
	ReportEvery int
}

// NamedMetric pairs a metric with the name used in violation reports.
type NamedMetric[T any] struct {
	Name   string
	Metric search.Metric[T]
}

// Violation is one sampled triple whose distances break the triangle inequality.
type Violation[T any] struct {
	Metric string
	A, B, C T
	AB      float64
	AC      float64
	BC      float64
}

type Report[T any] struct {
	Checked    int
	Violations []Violation[T]
}

// Violates reports whether any side exceeds the sum of the other two by more than epsilon.
func Violates(ab, ac, bc, epsilon float64) bool {
	return ab > ac+bc+epsilon || ac > ab+bc+epsilon || bc > ab+ac+epsilon
}

// CheckTriangleInequality draws triples uniformly with replacement from data and measures them
// under every metric.
func CheckTriangleInequality[T any](ctx context.Context, data []T, metrics []NamedMetric[T], cfg Config, logger ectologger.Logger) (Report[T], error) {
	ctx, span := tracing.StartSpan(ctx, "metriccheck.CheckTriangleInequality")
	defer span.End()

	var report Report[T]
	if len(data) == 0 || len(metrics) == 0 {
		return report, nil
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = DefaultEpsilon
	}
	if cfg.Seed == 0 {
		cfg.Seed = DefaultSeed
	}
	if cfg.ReportEvery <= 0 {
		cfg.ReportEvery = DefaultReportEvery
	}

	log := logger.WithContext(ctx).WithFields(map[string]any{
		"records": len(data),
		"metrics": len(metrics),
		"samples": cfg.Samples,
	})

	rng := rand.New(rand.NewSource(cfg.Seed))
	for cfg.Samples == 0 || report.Checked < cfg.Samples {
		select {
		case <-ctx.Done():
			if cfg.Samples == 0 {
				log.Infof("Triangle inequality check stopped after %d triples", report.Checked)
				return report, nil
			}
			return report, ctx.Err()
		default:
		}

		a := data[rng.Intn(len(data))]
		b := data[rng.Intn(len(data))]
		c := data[rng.Intn(len(data))]

		for _, m := range metrics {
			ab, err := m.Metric.Distance(a, b)
			if err != nil {
				return report, fmt.Errorf("failed to measure triple with %s: %w", m.Name, err)
			}
			ac, err := m.Metric.Distance(a, c)
			if err != nil {
				return report, fmt.Errorf("failed to measure triple with %s: %w", m.Name, err)
			}
			bc, err := m.Metric.Distance(b, c)
			if err != nil {
				return report, fmt.Errorf("failed to measure triple with %s: %w", m.Name, err)
			}

			if Violates(ab, ac, bc, cfg.Epsilon) {
				log.WithFields(map[string]any{
					"metric": m.Name,
					"ab":     ab,
					"ac":     ac,
					"bc":     bc,
				}).Warn("Triangle inequality violated")
				report.Violations = append(report.Violations, Violation[T]{
					Metric: m.Name, A: a, B: b, C: c, AB: ab, AC: ac, BC: bc,
				})
			}
		}

		report.Checked++
		if report.Checked%cfg.ReportEvery == 0 {
			log.Infof("Checked %d triples", report.Checked)
		}
	}

	return report, nil
}
