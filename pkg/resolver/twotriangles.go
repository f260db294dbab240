package resolver

import (
	"fmt"

	"github.com/Ramsey-B/clover/pkg/graph"
)

// TwoTriangles is a pair of disjoint closed triangles T and S where T1-S1 and T2-S2 are linked
// but T3-S3 is not.
type TwoTriangles struct {
	T, S        [3]string
	T1S1, T2S2  float64
	MissingFrom string
	MissingTo   string
}

func (tt TwoTriangles) String() string {
	return fmt.Sprintf("t=%v s=%v t1s1=%g t2s2=%g missing %s-%s", tt.T, tt.S, tt.T1S1, tt.T2S2, tt.MissingFrom, tt.MissingTo)
}

// Low reports whether both cross links are close enough to justify the missing one.
func (tt TwoTriangles) Low(th Thresholds) bool {
	return tt.T1S1+tt.T2S2 < th.LDRT
}

var corners = [][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

// twoTriangles finds every pair of closed triangles cross-linked on exactly two corners.
func (s *snapshot) twoTriangles(closed []Triangle) []TwoTriangles {
	var out []TwoTriangles
	seen := map[[4]string]bool{}
	for i := 0; i < len(closed); i++ {
		t := [3]string{closed[i].X, closed[i].Y, closed[i].Z}
		for j := i + 1; j < len(closed); j++ {
			sv := [3]string{closed[j].X, closed[j].Y, closed[j].Z}
			if overlaps(t, sv) {
				continue
			}
			for _, perm := range corners {
				found, ok := s.crossLinked(t, [3]string{sv[perm[0]], sv[perm[1]], sv[perm[2]]})
				if !ok {
					continue
				}
				missing := graph.PairKey(found.MissingFrom, found.MissingTo)
				key := [4]string{closed[i].X + "|" + closed[i].Y + "|" + closed[i].Z, closed[j].X + "|" + closed[j].Y + "|" + closed[j].Z, missing[0], missing[1]}
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, found)
			}
		}
	}
	return out
}

// crossLinked checks a corner matching t[k]-s[k]. Exactly two matched corners must be linked.
func (s *snapshot) crossLinked(t, sv [3]string) (TwoTriangles, bool) {
	var linked []int
	missing := -1
	for k := 0; k < 3; k++ {
		if _, ok := s.edge(t[k], sv[k]); ok {
			linked = append(linked, k)
		} else {
			missing = k
		}
	}
	if len(linked) != 2 {
		return TwoTriangles{}, false
	}

	a, b := linked[0], linked[1]
	e1, _ := s.edge(t[a], sv[a])
	e2, _ := s.edge(t[b], sv[b])
	return TwoTriangles{
		T:           [3]string{t[a], t[b], t[missing]},
		S:           [3]string{sv[a], sv[b], sv[missing]},
		T1S1:        e1.Distance,
		T2S2:        e2.Distance,
		MissingFrom: t[missing],
		MissingTo:   sv[missing],
	}, true
}

func overlaps(a, b [3]string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
