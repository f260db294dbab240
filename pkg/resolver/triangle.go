package resolver

import (
	"fmt"

	"github.com/Ramsey-B/clover/pkg/graph"
)

// Pattern selects which triangles a pass examines.
type Pattern string

const (
	// PatternOpen examines paths x-y-z where x and z are not linked.
	PatternOpen Pattern = "open"
	// PatternAll examines every connected triple, open and closed.
	PatternAll Pattern = "all"
)

// ParsePattern maps a configured name onto a Pattern. The empty name is PatternOpen.
func ParsePattern(name string) (Pattern, error) {
	switch Pattern(name) {
	case "", PatternOpen:
		return PatternOpen, nil
	case PatternAll:
		return PatternAll, nil
	}
	return "", fmt.Errorf("unknown triangle pattern %q", name)
}

// Classification is the outcome of examining one triangle.
type Classification string

const (
	Consistent         Classification = "consistent"
	InconsistentClosed Classification = "inconsistent-closed"
	AddEdge            Classification = "add-edge"
	RemoveEdge         Classification = "remove-edge"
	Unresolved         Classification = "unresolved"
	Degenerate         Classification = "degenerate"
)

// Triangle is a connected triple x-y-z. XZ is only meaningful when Closed.
type Triangle struct {
	X, Y, Z    string
	XY, YZ, XZ float64
	Closed     bool
}

func (t Triangle) String() string {
	if t.Closed {
		return fmt.Sprintf("closed(%s, %s, %s | %g, %g, %g)", t.X, t.Y, t.Z, t.XY, t.YZ, t.XZ)
	}
	return fmt.Sprintf("open(%s-%s-%s | %g, %g)", t.X, t.Y, t.Z, t.XY, t.YZ)
}

// Thresholds are the two distance-ratio thresholds of a pass.
type Thresholds struct {
	// LDRT is the low distance ratio threshold: two links summing below it are trusted.
	LDRT float64
	// HDRT is the high distance ratio threshold: links summing above it are doubted.
	HDRT float64
	// SupportThreshold is the number of shared neighbours that justifies closing an open triangle.
	SupportThreshold int
}

// ClassifyClosed classifies a closed triangle and returns the disputed (longest) edge.
// A closed triangle is consistent when every edge is at most HDRT, or when the longest edge
// exceeds HDRT but the other two sum below LDRT.
func ClassifyClosed(t Triangle, th Thresholds) (Classification, [2]string) {
	type side struct {
		a, b string
		d    float64
	}
	sides := []side{{t.X, t.Y, t.XY}, {t.Y, t.Z, t.YZ}, {t.X, t.Z, t.XZ}}
	longest := 0
	for i := 1; i < len(sides); i++ {
		if sides[i].d > sides[longest].d {
			longest = i
		}
	}
	disputed := graph.PairKey(sides[longest].a, sides[longest].b)

	if sides[longest].d <= th.HDRT {
		return Consistent, disputed
	}
	var rest float64
	for i, s := range sides {
		if i != longest {
			rest += s.d
		}
	}
	if rest < th.LDRT {
		return Consistent, disputed
	}
	return InconsistentClosed, disputed
}

// ClassifyOpen classifies an open triangle x-y-z. shared is the number of neighbours x and z have
// in common. For RemoveEdge the returned pair is the longer of x-y and y-z; for AddEdge it is x-z.
func ClassifyOpen(t Triangle, shared int, th Thresholds) (Classification, [2]string) {
	if t.X == t.Y || t.Y == t.Z || t.X == t.Z {
		return Degenerate, [2]string{}
	}
	sum := t.XY + t.YZ
	switch {
	case sum < th.LDRT:
		return AddEdge, graph.PairKey(t.X, t.Z)
	case th.SupportThreshold > 0 && shared >= th.SupportThreshold:
		return AddEdge, graph.PairKey(t.X, t.Z)
	case sum > th.HDRT:
		if t.XY > t.YZ {
			return RemoveEdge, graph.PairKey(t.X, t.Y)
		}
		return RemoveEdge, graph.PairKey(t.Y, t.Z)
	}
	return Unresolved, graph.PairKey(t.X, t.Z)
}
