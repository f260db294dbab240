package graph

import (
	"sort"

	"github.com/Ramsey-B/clover/pkg/linkage"
)

// Edge is a stored link between two record nodes. Edges are undirected.
type Edge struct {
	ID              string
	From            string
	To              string
	LinkType        string
	Distance        float64
	HasDistance     bool
	FieldsPopulated int
	Provenance      []string
	Actors          []string
	RunID           string
}

// EdgeFromLink converts an accepted link into an edge.
func EdgeFromLink(l linkage.Link, runID string) Edge {
	return Edge{
		ID:              l.ID,
		From:            l.Role1.RecordID,
		To:              l.Role2.RecordID,
		LinkType:        l.LinkType,
		Distance:        l.Distance,
		HasDistance:     true,
		FieldsPopulated: l.FieldsPopulated,
		Provenance:      l.Provenance,
		Actors:          []string{l.Role1.String(), l.Role2.String()},
		RunID:           runID,
	}
}

// Key identifies the undirected node pair of an edge.
func (e Edge) Key() [2]string {
	return PairKey(e.From, e.To)
}

// PairKey orders two node ids so either direction yields the same key.
func PairKey(a, b string) [2]string {
	if b < a {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}

// PatternCounts summarises the structure of one link type.
type PatternCounts struct {
	Edges           int `json:"edges"`
	OpenTriangles   int `json:"open_triangles"`
	ClosedTriangles int `json:"closed_triangles"`
	Deleted         int `json:"deleted"`
}

// CountPatterns counts open and closed triangles among edges. An open triangle is a path x-y-z
// with no x-z edge, counted once per unordered end pair and middle node.
func CountPatterns(edges []Edge) PatternCounts {
	adj := map[string]map[string]bool{}
	link := func(a, b string) {
		if adj[a] == nil {
			adj[a] = map[string]bool{}
		}
		adj[a][b] = true
	}
	seen := map[[2]string]bool{}
	for _, e := range edges {
		if e.From == e.To || seen[e.Key()] {
			continue
		}
		seen[e.Key()] = true
		link(e.From, e.To)
		link(e.To, e.From)
	}

	counts := PatternCounts{Edges: len(seen)}
	for y, neighbours := range adj {
		ns := make([]string, 0, len(neighbours))
		for n := range neighbours {
			ns = append(ns, n)
		}
		sort.Strings(ns)
		for i := 0; i < len(ns); i++ {
			for j := i + 1; j < len(ns); j++ {
				x, z := ns[i], ns[j]
				if !adj[x][z] {
					counts.OpenTriangles++
				} else if y < x {
					counts.ClosedTriangles++
				}
			}
		}
	}
	return counts
}
