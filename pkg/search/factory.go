package search

import (
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/errors"
)

type Backend string

const (
	BackendMTree  Backend = "mtree"
	BackendPivot  Backend = "pivot"
	BackendLinear Backend = "linear"
)

func ParseBackend(name string) (Backend, error) {
	switch b := Backend(name); b {
	case BackendMTree, BackendPivot, BackendLinear:
		return b, nil
	case "":
		return BackendMTree, nil
	}
	return "", errors.NewConfigError("search", fmt.Sprintf("unknown search backend %q", name)).AddSetting("backend")
}

// Factory builds search structures over a metric with a configured backend.
type Factory[T any] struct {
	Metric       Metric[T]
	Backend      Backend
	NodeCapacity int
	Pivot        PivotConfig
	Logger       ectologger.Logger
}

// New indexes data with the configured backend.
func (f Factory[T]) New(data []T) (Structure[T], error) {
	switch f.Backend {
	case BackendPivot:
		return NewPivotIndex(f.Metric, data, f.Pivot, f.Logger)
	case BackendLinear:
		return NewLinear(f.Metric, data), nil
	case BackendMTree, "":
		tree := NewMTree(f.Metric, f.NodeCapacity)
		for _, o := range data {
			if err := tree.Add(o); err != nil {
				return nil, fmt.Errorf("failed to add object to m-tree: %w", err)
			}
		}
		return tree, nil
	}
	return nil, errors.NewConfigError("search", fmt.Sprintf("unknown search backend %q", f.Backend)).AddSetting("backend")
}

// NewWithPivots indexes data starting from the supplied pivots. Backends without pivots ignore them.
func (f Factory[T]) NewWithPivots(data, pivots []T) (Structure[T], error) {
	if f.Backend == BackendPivot {
		return NewPivotIndexWithPivots(f.Metric, data, pivots, f.Pivot, f.Logger)
	}
	return f.New(data)
}
