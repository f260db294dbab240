package resolver

import (
	"sort"

	"github.com/Ramsey-B/clover/pkg/graph"
)

// snapshot is an adjacency view over the edges of one link type.
type snapshot struct {
	adj   map[string]map[string]graph.Edge
	nodes []string
}

func newSnapshot(edges []graph.Edge) *snapshot {
	s := &snapshot{adj: map[string]map[string]graph.Edge{}}
	add := func(a, b string, e graph.Edge) {
		if s.adj[a] == nil {
			s.adj[a] = map[string]graph.Edge{}
			s.nodes = append(s.nodes, a)
		}
		s.adj[a][b] = e
	}
	for _, e := range edges {
		if e.From == e.To {
			continue
		}
		if _, dup := s.adj[e.From][e.To]; dup {
			continue
		}
		add(e.From, e.To, e)
		add(e.To, e.From, e)
	}
	sort.Strings(s.nodes)
	return s
}

func (s *snapshot) edge(a, b string) (graph.Edge, bool) {
	e, ok := s.adj[a][b]
	return e, ok
}

func (s *snapshot) neighbours(n string) []string {
	out := make([]string, 0, len(s.adj[n]))
	for m := range s.adj[n] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (s *snapshot) shared(a, b string) int {
	var n int
	for m := range s.adj[a] {
		if _, ok := s.adj[b][m]; ok {
			n++
		}
	}
	return n
}

// cluster is one connected component, nodes sorted.
type cluster struct {
	nodes []string
	edges []graph.Edge
}

func (c cluster) hasDistances() bool {
	for _, e := range c.edges {
		if !e.HasDistance {
			return false
		}
	}
	return true
}

// components returns the connected components ordered by their smallest node.
func (s *snapshot) components() []cluster {
	seen := map[string]bool{}
	var out []cluster
	for _, start := range s.nodes {
		if seen[start] {
			continue
		}
		var c cluster
		queue := []string{start}
		seen[start] = true
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			c.nodes = append(c.nodes, n)
			for _, m := range s.neighbours(n) {
				if n < m {
					c.edges = append(c.edges, s.adj[n][m])
				}
				if !seen[m] {
					seen[m] = true
					queue = append(queue, m)
				}
			}
		}
		sort.Strings(c.nodes)
		out = append(out, c)
	}
	return out
}

// triangles enumerates the connected triples of a cluster. Open triples are reported once per
// middle node and unordered end pair; closed triples once, with X < Y < Z.
func (s *snapshot) triangles(c cluster, pattern Pattern) []Triangle {
	var out []Triangle
	for _, y := range c.nodes {
		ns := s.neighbours(y)
		for i := 0; i < len(ns); i++ {
			for j := i + 1; j < len(ns); j++ {
				x, z := ns[i], ns[j]
				xy, _ := s.edge(x, y)
				yz, _ := s.edge(y, z)
				xz, closed := s.edge(x, z)
				if !closed {
					out = append(out, Triangle{X: x, Y: y, Z: z, XY: xy.Distance, YZ: yz.Distance})
					continue
				}
				if pattern != PatternAll || y > x {
					continue
				}
				// y < x < z: rename so X < Y < Z
				out = append(out, Triangle{
					X: y, Y: x, Z: z,
					XY: xy.Distance, YZ: xz.Distance, XZ: yz.Distance,
					Closed: true,
				})
			}
		}
	}
	return out
}

// closedTriangles lists every closed triangle of a cluster regardless of pattern.
func (s *snapshot) closedTriangles(c cluster) []Triangle {
	var out []Triangle
	for _, t := range s.triangles(c, PatternAll) {
		if t.Closed {
			out = append(out, t)
		}
	}
	return out
}

// dendrogram is a node of an average-linkage hierarchy.
type dendrogram struct {
	members     []string
	distance    float64
	left, right *dendrogram
}

func (d *dendrogram) size() int {
	return len(d.members)
}

// averageLinkage clusters nodes agglomeratively, merging the closest pair of clusters by mean
// pairwise distance until one remains.
func averageLinkage(nodes []string, distance func(a, b string) float64) *dendrogram {
	if len(nodes) == 0 {
		return nil
	}
	active := make([]*dendrogram, len(nodes))
	for i, n := range nodes {
		active[i] = &dendrogram{members: []string{n}}
	}
	dist := make([][]float64, len(nodes))
	for i := range dist {
		dist[i] = make([]float64, len(nodes))
		for j := 0; j < i; j++ {
			d := distance(nodes[i], nodes[j])
			dist[i][j], dist[j][i] = d, d
		}
	}

	alive := make([]bool, len(nodes))
	for i := range alive {
		alive[i] = true
	}
	for remaining := len(nodes); remaining > 1; remaining-- {
		bi, bj := -1, -1
		for i := range active {
			if !alive[i] {
				continue
			}
			for j := i + 1; j < len(active); j++ {
				if alive[j] && (bi < 0 || dist[i][j] < dist[bi][bj]) {
					bi, bj = i, j
				}
			}
		}

		a, b := active[bi], active[bj]
		merged := &dendrogram{
			members:  append(append([]string{}, a.members...), b.members...),
			distance: dist[bi][bj],
			left:     a,
			right:    b,
		}
		// Lance-Williams update for average linkage
		na, nb := float64(a.size()), float64(b.size())
		for k := range active {
			if alive[k] && k != bi && k != bj {
				d := (na*dist[bi][k] + nb*dist[bj][k]) / (na + nb)
				dist[bi][k], dist[k][bi] = d, d
			}
		}
		active[bi] = merged
		alive[bj] = false
	}
	for i, ok := range alive {
		if ok {
			return active[i]
		}
	}
	return nil
}

// Split proposes dividing a cluster between two sub-clusters.
type Split struct {
	Left     []string     `json:"left"`
	Right    []string     `json:"right"`
	Distance float64      `json:"distance"`
	Cut      []graph.Edge `json:"cut"`
}

// splits walks a hierarchy and proposes a split wherever a cluster is loose (distance > HDRT)
// but one of its children of at least two members is tight (distance < LDRT).
func (s *snapshot) splits(root *dendrogram, th Thresholds) []Split {
	var out []Split
	var walk func(d *dendrogram)
	walk = func(d *dendrogram) {
		if d == nil || d.left == nil {
			return
		}
		if d.distance > th.HDRT && (tight(d.left, th) || tight(d.right, th)) {
			out = append(out, Split{
				Left:     sorted(d.left.members),
				Right:    sorted(d.right.members),
				Distance: d.distance,
				Cut:      s.crossing(d.left.members, d.right.members),
			})
		}
		if d.size() > 2 {
			walk(d.left)
			walk(d.right)
		}
	}
	walk(root)
	return out
}

func tight(d *dendrogram, th Thresholds) bool {
	return d != nil && d.size() >= 2 && d.distance < th.LDRT
}

func (s *snapshot) crossing(left, right []string) []graph.Edge {
	var out []graph.Edge
	for _, a := range sorted(left) {
		for _, b := range sorted(right) {
			if e, ok := s.edge(a, b); ok {
				out = append(out, e)
			}
		}
	}
	return out
}

func sorted(ids []string) []string {
	out := append([]string{}, ids...)
	sort.Strings(out)
	return out
}
