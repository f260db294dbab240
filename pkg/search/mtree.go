package search

import (
	"container/heap"
	"math"
)

// DefaultNodeCapacity is the number of entries an M-tree node holds before it splits.
const DefaultNodeCapacity = 8

type mentry[T any] struct {
	object     T
	order      int
	parentDist float64
	radius     float64
	child      *mnode[T]
}

type mnode[T any] struct {
	leaf    bool
	entries []*mentry[T]
	parent  *mnode[T]
	// routing is the entry in parent that points at this node, nil for the root.
	routing *mentry[T]
}

// MTree is an exact metric tree. It is not safe for concurrent use.
type MTree[T any] struct {
	metric   Metric[T]
	capacity int
	root     *mnode[T]
	size     int
	life     lifecycle
}

func NewMTree[T any](metric Metric[T], capacity int) *MTree[T] {
	if capacity < 2 {
		capacity = DefaultNodeCapacity
	}
	return &MTree[T]{
		metric:   metric,
		capacity: capacity,
	}
}

// Size returns the number of objects added.
func (t *MTree[T]) Size() int {
	return t.size
}

// Add inserts an object.
func (t *MTree[T]) Add(object T) error {
	if err := t.life.check(); err != nil {
		return err
	}

	entry := &mentry[T]{object: object, order: t.size}
	if t.root == nil {
		t.root = &mnode[T]{leaf: true, entries: []*mentry[T]{entry}}
		t.size++
		return nil
	}

	node := t.root
	for !node.leaf {
		var (
			best     *mentry[T]
			bestDist float64
			bestGrow = math.Inf(1)
			inside   bool
		)
		for _, e := range node.entries {
			d, err := t.metric.Distance(object, e.object)
			if err != nil {
				return err
			}
			switch {
			case d <= e.radius:
				if !inside || d < bestDist {
					best, bestDist, inside = e, d, true
				}
			case !inside && d-e.radius < bestGrow:
				best, bestDist, bestGrow = e, d, d-e.radius
			}
		}
		if bestDist > best.radius {
			best.radius = bestDist
		}
		entry.parentDist = bestDist
		node = best.child
	}

	node.entries = append(node.entries, entry)
	t.size++

	if len(node.entries) > t.capacity {
		return t.split(node)
	}
	return nil
}

// split promotes the two most distant entries of node and partitions the rest by proximity.
func (t *MTree[T]) split(node *mnode[T]) error {
	n := len(node.entries)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	p1, p2, far := 0, 1, -1.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d, err := t.metric.Distance(node.entries[i].object, node.entries[j].object)
			if err != nil {
				return err
			}
			dist[i][j], dist[j][i] = d, d
			if d > far {
				p1, p2, far = i, j, d
			}
		}
	}

	n1 := &mnode[T]{leaf: node.leaf}
	n2 := &mnode[T]{leaf: node.leaf}
	r1 := &mentry[T]{object: node.entries[p1].object, order: node.entries[p1].order, child: n1}
	r2 := &mentry[T]{object: node.entries[p2].object, order: node.entries[p2].order, child: n2}
	n1.routing, n2.routing = r1, r2

	for i, e := range node.entries {
		target, routing, d := n1, r1, dist[i][p1]
		if i == p2 || (i != p1 && dist[i][p2] < dist[i][p1]) || (i != p1 && dist[i][p2] == dist[i][p1] && len(n2.entries) < len(n1.entries)) {
			target, routing, d = n2, r2, dist[i][p2]
		}
		e.parentDist = d
		target.entries = append(target.entries, e)
		if e.child != nil {
			e.child.parent = target
		}
		reach := d
		if !node.leaf {
			reach += e.radius
		}
		if reach > routing.radius {
			routing.radius = reach
		}
	}

	if node.parent == nil {
		root := &mnode[T]{entries: []*mentry[T]{r1, r2}}
		n1.parent, n2.parent = root, root
		t.root = root
		return nil
	}

	parent := node.parent
	n1.parent, n2.parent = parent, parent
	for _, r := range []*mentry[T]{r1, r2} {
		if parent.routing != nil {
			d, err := t.metric.Distance(r.object, parent.routing.object)
			if err != nil {
				return err
			}
			r.parentDist = d
		}
	}
	for i, e := range parent.entries {
		if e == node.routing {
			parent.entries[i] = r1
			break
		}
	}
	parent.entries = append(parent.entries, r2)

	if len(parent.entries) > t.capacity {
		return t.split(parent)
	}
	return nil
}

func (t *MTree[T]) RangeSearch(query T, threshold float64) ([]Result[T], error) {
	if err := t.life.check(); err != nil {
		return nil, err
	}
	if t.root == nil {
		return nil, ErrEmpty
	}

	var out []Result[T]
	if err := t.rangeSearch(t.root, query, threshold, -1, &out); err != nil {
		return nil, err
	}
	sortResults(out)
	return out, nil
}

// rangeSearch visits node; queryToRouting is d(query, node's routing object) or -1 at the root.
func (t *MTree[T]) rangeSearch(node *mnode[T], query T, threshold, queryToRouting float64, out *[]Result[T]) error {
	for _, e := range node.entries {
		if queryToRouting >= 0 && math.Abs(queryToRouting-e.parentDist) > threshold+e.radius {
			continue
		}
		d, err := t.metric.Distance(query, e.object)
		if err != nil {
			return err
		}
		if node.leaf {
			if d <= threshold {
				*out = append(*out, Result[T]{Value: e.object, Distance: d, Order: e.order})
			}
			continue
		}
		if d <= threshold+e.radius {
			if err := t.rangeSearch(e.child, query, threshold, d, out); err != nil {
				return err
			}
		}
	}
	return nil
}

type pendingNode[T any] struct {
	node           *mnode[T]
	queryToRouting float64
	minDist        float64
}

type nodeQueue[T any] []pendingNode[T]

func (q nodeQueue[T]) Len() int           { return len(q) }
func (q nodeQueue[T]) Less(i, j int) bool { return q[i].minDist < q[j].minDist }
func (q nodeQueue[T]) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue[T]) Push(x any)        { *q = append(*q, x.(pendingNode[T])) }
func (q *nodeQueue[T]) Pop() any {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}

// KNearest performs a best-first traversal, keeping the k best results by (distance, insertion order).
func (t *MTree[T]) KNearest(query T, k int) ([]Result[T], error) {
	if err := t.life.check(); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, ErrInvalidK
	}
	if t.root == nil {
		return nil, ErrEmpty
	}

	var best []Result[T]
	bound := func() float64 {
		if len(best) < k {
			return math.Inf(1)
		}
		return best[len(best)-1].Distance
	}
	offer := func(r Result[T]) {
		if len(best) == k {
			last := best[k-1]
			if r.Distance > last.Distance || (r.Distance == last.Distance && r.Order > last.Order) {
				return
			}
			best = best[:k-1]
		}
		i := len(best)
		best = append(best, r)
		for i > 0 && (best[i-1].Distance > r.Distance || (best[i-1].Distance == r.Distance && best[i-1].Order > r.Order)) {
			best[i] = best[i-1]
			i--
		}
		best[i] = r
	}

	queue := &nodeQueue[T]{{node: t.root, queryToRouting: -1}}
	for queue.Len() > 0 {
		next := heap.Pop(queue).(pendingNode[T])
		if next.minDist > bound() {
			break
		}
		for _, e := range next.node.entries {
			if next.queryToRouting >= 0 && math.Abs(next.queryToRouting-e.parentDist)-e.radius > bound() {
				continue
			}
			d, err := t.metric.Distance(query, e.object)
			if err != nil {
				return nil, err
			}
			if next.node.leaf {
				offer(Result[T]{Value: e.object, Distance: d, Order: e.order})
				continue
			}
			minDist := math.Max(d-e.radius, 0)
			if minDist <= bound() {
				heap.Push(queue, pendingNode[T]{node: e.child, queryToRouting: d, minDist: minDist})
			}
		}
	}
	return best, nil
}

// Terminate releases nothing but enforces the exactly-once contract shared with other structures.
func (t *MTree[T]) Terminate() error {
	return t.life.terminate()
}
