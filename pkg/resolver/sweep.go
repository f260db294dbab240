package resolver

import (
	"context"
	"fmt"
	"math"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SweepRanges bounds a parameter sweep. Minimum cluster size counts down; both thresholds count up.
// Upper bounds are inclusive.
type SweepRanges struct {
	MinClusterFrom int     `yaml:"min_cluster_from"`
	MinClusterTo   int     `yaml:"min_cluster_to"`
	HDRTFrom       float64 `yaml:"hdrt_from"`
	HDRTTo         float64 `yaml:"hdrt_to"`
	HDRTStep       float64 `yaml:"hdrt_step"`
	LDRTFrom       float64 `yaml:"ldrt_from"`
	LDRTTo         float64 `yaml:"ldrt_to"`
	LDRTStep       float64 `yaml:"ldrt_step"`
}

// DefaultSweepRanges covers minimum cluster sizes 9 to 3, HDRT 0.2 to 0.7 and LDRT 0.10 to 0.35.
func DefaultSweepRanges() SweepRanges {
	return SweepRanges{
		MinClusterFrom: 9,
		MinClusterTo:   3,
		HDRTFrom:       0.2,
		HDRTTo:         0.7,
		HDRTStep:       0.1,
		LDRTFrom:       0.10,
		LDRTTo:         0.35,
		LDRTStep:       0.05,
	}
}

func (r SweepRanges) validate() error {
	if r.HDRTStep <= 0 || r.LDRTStep <= 0 {
		return errors.NewConfigError("resolver", "sweep steps must be positive").AddSetting("sweep")
	}
	if r.MinClusterFrom < r.MinClusterTo || r.HDRTTo < r.HDRTFrom || r.LDRTTo < r.LDRTFrom {
		return errors.NewConfigError("resolver", fmt.Sprintf("empty sweep range %+v", r)).AddSetting("sweep")
	}
	return nil
}

// steps lists from, from+step, ... up to and including to, rounded to hide accumulated error.
func steps(from, to, step float64) []float64 {
	n := int(math.Floor((to-from)/step + 1e-9))
	out := make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		out = append(out, math.Round((from+float64(i)*step)*1e6)/1e6)
	}
	return out
}

// SweepResult holds one report per setting and the best scoring setting when truth is known.
type SweepResult struct {
	Reports []*Report `json:"reports"`
	Best    *Report   `json:"best,omitempty"`
}

// Sweep reads the graph once and runs a report-mode pass for every setting in ranges. Best is set
// only when the resolver has a truth function; ties keep the earliest setting.
func (r *Resolver) Sweep(ctx context.Context, ranges SweepRanges) (*SweepResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.Sweep")
	defer span.End()

	log := r.logger.WithContext(ctx).WithField("link_type", r.cfg.LinkType)

	if err := ranges.validate(); err != nil {
		return nil, err
	}

	snap, err := r.read(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to read link graph")
		return nil, err
	}

	res := &SweepResult{}
	for minCluster := ranges.MinClusterFrom; minCluster >= ranges.MinClusterTo; minCluster-- {
		for _, hdrt := range steps(ranges.HDRTFrom, ranges.HDRTTo, ranges.HDRTStep) {
			for _, ldrt := range steps(ranges.LDRTFrom, ranges.LDRTTo, ranges.LDRTStep) {
				if err := ctx.Err(); err != nil {
					return res, err
				}
				cfg := r.cfg
				cfg.Mode = ModeReport
				cfg.MinClusterSize = minCluster
				cfg.HDRT = hdrt
				cfg.LDRT = ldrt

				report := analyse(snap, cfg)
				res.Reports = append(res.Reports, report)
				if r.cfg.Truth != nil && (res.Best == nil || report.Stats.Score() > res.Best.Stats.Score()) {
					res.Best = report
				}
				log.Debugf("min_cluster=%d hdrt=%.2f ldrt=%.2f add=%d remove=%d score=%d",
					minCluster, hdrt, ldrt, report.Stats.Added, report.Stats.Removed, report.Stats.Score())
			}
		}
	}

	if res.Best != nil {
		log.Infof("Best setting min_cluster=%d hdrt=%.2f ldrt=%.2f score=%d",
			res.Best.MinClusterSize, res.Best.HDRT, res.Best.LDRT, res.Best.Stats.Score())
	}
	return res, nil
}
