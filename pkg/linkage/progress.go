package linkage

import (
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
)

// ProgressIndicator reports percentage completion at a fixed number of checkpoints.
type ProgressIndicator struct {
	linkType string
	updates  int
	total    int
	done     int
	reported int
	logger   ectologger.Logger
}

func NewProgressIndicator(linkType string, updates int, logger ectologger.Logger) *ProgressIndicator {
	return &ProgressIndicator{
		linkType: linkType,
		updates:  updates,
		logger:   logger,
	}
}

// SetTotal resets the indicator for a run of total steps.
func (p *ProgressIndicator) SetTotal(total int) {
	p.total = total
	p.done = 0
	p.reported = 0
	metrics.RecordProgress(p.linkType, 0)
}

// Step records one completed step and reports when a checkpoint is crossed.
func (p *ProgressIndicator) Step() {
	if p == nil || p.updates <= 0 || p.total <= 0 {
		return
	}
	p.done++

	checkpoint := p.done * p.updates / p.total
	if checkpoint <= p.reported {
		return
	}
	p.reported = checkpoint

	percent := p.Percent()
	metrics.RecordProgress(p.linkType, percent)
	p.logger.WithFields(map[string]any{
		"link_type": p.linkType,
		"done":      p.done,
		"total":     p.total,
	}).Infof("Linkage %.0f%% complete", percent)
}

func (p *ProgressIndicator) Percent() float64 {
	if p.total == 0 {
		return 0
	}
	return float64(p.done) * 100 / float64(p.total)
}

// Reported returns the number of checkpoints reported so far.
func (p *ProgressIndicator) Reported() int {
	return p.reported
}
