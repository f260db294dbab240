package linkage

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// LinkWriter persists accepted links.
type LinkWriter interface {
	// LinkExists reports whether an edge of the link's type already joins its two records.
	LinkExists(ctx context.Context, link Link) (bool, error)
	CreateLink(ctx context.Context, link Link) error
}

// PersistResult counts the outcome of a Persist call.
type PersistResult struct {
	Created  int
	Existing int
}

// Persist writes links that are not already stored. Writers may be chained; each is checked and
// written independently.
func Persist(ctx context.Context, links []Link, logger ectologger.Logger, writers ...LinkWriter) (PersistResult, error) {
	ctx, span := tracing.StartSpan(ctx, "linkage.Persist")
	defer span.End()

	log := logger.WithContext(ctx).WithField("links", len(links))

	var res PersistResult
	for _, link := range links {
		for _, w := range writers {
			exists, err := w.LinkExists(ctx, link)
			if err != nil {
				log.WithError(err).Error("Failed to check link existence")
				return res, fmt.Errorf("failed to check link %s: %w", link, err)
			}
			if exists {
				res.Existing++
				continue
			}
			if err := w.CreateLink(ctx, link); err != nil {
				log.WithError(err).Error("Failed to create link")
				return res, fmt.Errorf("failed to create link %s: %w", link, err)
			}
			res.Created++
		}
	}

	log.WithFields(map[string]any{
		"created":  res.Created,
		"existing": res.Existing,
	}).Info("Persisted links")
	return res, nil
}
