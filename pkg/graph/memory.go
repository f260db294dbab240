package graph

import (
	"context"
	"sort"
	"sync"

	"github.com/Ramsey-B/clover/pkg/linkage"
)

// Memory is an in-process link graph with the same semantics as LinkStore.
type Memory struct {
	mu      sync.RWMutex
	runID   string
	edges   map[string]map[[2]string]Edge
	deleted map[string]map[[2]string]Edge
}

// NewMemory creates an empty graph. runID is stamped on edges created from links.
func NewMemory(runID string) *Memory {
	return &Memory{
		runID:   runID,
		edges:   map[string]map[[2]string]Edge{},
		deleted: map[string]map[[2]string]Edge{},
	}
}

// LinkExists reports whether an edge of the link's type joins its two records.
func (m *Memory) LinkExists(_ context.Context, l linkage.Link) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.edges[l.LinkType][PairKey(l.Role1.RecordID, l.Role2.RecordID)]
	return ok, nil
}

// CreateLink stores a link as an edge. An existing edge between the same records is kept.
func (m *Memory) CreateLink(ctx context.Context, l linkage.Link) error {
	return m.AddEdge(ctx, EdgeFromLink(l, m.runID))
}

// AddEdge stores an edge unless one of the same type already joins its nodes.
func (m *Memory) AddEdge(_ context.Context, e Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byType, ok := m.edges[e.LinkType]
	if !ok {
		byType = map[[2]string]Edge{}
		m.edges[e.LinkType] = byType
	}
	if _, exists := byType[e.Key()]; !exists {
		byType[e.Key()] = e
	}
	return nil
}

// RemoveEdge deletes the edge between two nodes and leaves a DELETED marker carrying provenance.
// Removing an absent edge is a no-op.
func (m *Memory) RemoveEdge(_ context.Context, linkType, from, to string, provenance []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := PairKey(from, to)
	e, ok := m.edges[linkType][key]
	if !ok {
		return nil
	}
	delete(m.edges[linkType], key)

	if m.deleted[linkType] == nil {
		m.deleted[linkType] = map[[2]string]Edge{}
	}
	e.Provenance = append(append([]string{}, e.Provenance...), provenance...)
	m.deleted[linkType][key] = e
	return nil
}

// Edges returns a snapshot of the live edges of one type, ordered by node pair.
func (m *Memory) Edges(_ context.Context, linkType string) ([]Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedEdges(m.edges[linkType]), nil
}

// Deleted returns the DELETED markers of one type, ordered by node pair.
func (m *Memory) Deleted(linkType string) []Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedEdges(m.deleted[linkType])
}

// PatternCounts counts edges, triangles and deleted markers of one type.
func (m *Memory) PatternCounts(ctx context.Context, linkType string) (PatternCounts, error) {
	edges, _ := m.Edges(ctx, linkType)
	counts := CountPatterns(edges)
	counts.Deleted = len(m.Deleted(linkType))
	return counts, nil
}

func sortedEdges(byKey map[[2]string]Edge) []Edge {
	out := make([]Edge, 0, len(byKey))
	for _, e := range byKey {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := out[i].Key(), out[j].Key()
		if ki[0] != kj[0] {
			return ki[0] < kj[0]
		}
		return ki[1] < kj[1]
	})
	return out
}
