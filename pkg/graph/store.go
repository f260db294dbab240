// Package graph stores accepted links as edges between record nodes in Memgraph or Neo4j over Bolt,
// and provides an in-process graph with the same behaviour.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/clover/pkg/linkage"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// DeletedLabel is the relationship type of markers left behind by removed edges.
const DeletedLabel = "DELETED"

// Config holds the Bolt server address and credentials. An empty Username connects without auth.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

// URI returns the Bolt address of the configured server.
func (c Config) URI() string {
	return fmt.Sprintf("bolt://%s:%d", c.Host, c.Port)
}

// LinkStore persists links as relationships between Record nodes. It owns its driver; every
// operation runs in its own managed transaction.
type LinkStore struct {
	driver neo4j.DriverWithContext
	runID  string
	logger ectologger.Logger
}

// Open connects a link store. runID is stamped on every relationship it creates. The driver
// connects lazily; call VerifyConnectivity to fail fast.
func Open(cfg Config, runID string, logger ectologger.Logger) (*LinkStore, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI(), auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver for %s: %w", cfg.URI(), err)
	}

	return &LinkStore{
		driver: driver,
		runID:  runID,
		logger: logger,
	}, nil
}

func (s *LinkStore) VerifyConnectivity(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

func (s *LinkStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *LinkStore) read(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work)
}

// write runs one statement in a write transaction and discards its result summary.
func (s *LinkStore) write(ctx context.Context, cypher string, params map[string]any) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	return err
}

// LinkExists reports whether a relationship of the link's type joins its two records, in either direction.
func (s *LinkStore) LinkExists(ctx context.Context, l linkage.Link) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.LinkStore.LinkExists")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (a:Record {id: $from_id})-[r:%s]-(b:Record {id: $to_id})
		RETURN count(r) AS n
	`, relType(l.LinkType))

	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return single(ctx, tx, cypher, map[string]any{
			"from_id": l.Role1.RecordID,
			"to_id":   l.Role2.RecordID,
		})
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to check link in graph")
		return false, fmt.Errorf("failed to check link in graph: %w", err)
	}
	return res.(int64) > 0, nil
}

// CreateLink stores a link as an edge.
func (s *LinkStore) CreateLink(ctx context.Context, l linkage.Link) error {
	return s.AddEdge(ctx, EdgeFromLink(l, s.runID))
}

// AddEdge merges the two record nodes and a relationship between them, directed from the lower id
// to the higher. Properties of an existing relationship are left as they are.
func (s *LinkStore) AddEdge(ctx context.Context, e Edge) error {
	ctx, span := tracing.StartSpan(ctx, "graph.LinkStore.AddEdge")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"from":      e.From,
		"to":        e.To,
		"link_type": e.LinkType,
	})

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.RunID == "" {
		e.RunID = s.runID
	}

	props := map[string]any{
		"id":               e.ID,
		"link_type":        e.LinkType,
		"fields_populated": int64(e.FieldsPopulated),
		"provenance":       e.Provenance,
		"actors":           e.Actors,
		"run_id":           e.RunID,
	}
	if e.HasDistance {
		props["distance"] = e.Distance
	}

	cypher := fmt.Sprintf(`
		MERGE (a:Record {id: $from_id})
		MERGE (b:Record {id: $to_id})
		MERGE (a)-[r:%s]->(b)
		ON CREATE SET r += $props
		RETURN r
	`, relType(e.LinkType))

	key := e.Key()
	err := s.write(ctx, cypher, map[string]any{
		"from_id": key[0],
		"to_id":   key[1],
		"props":   props,
	})
	if err != nil {
		log.WithError(err).Error("Failed to create link in graph")
		return fmt.Errorf("failed to create link in graph: %w", err)
	}

	log.Debug("Created link in graph")
	return nil
}

// RemoveEdge deletes the relationship between two records and leaves a DELETED marker carrying
// the removed edge's properties and the removal provenance.
func (s *LinkStore) RemoveEdge(ctx context.Context, linkType, from, to string, provenance []string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.LinkStore.RemoveEdge")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"from":      from,
		"to":        to,
		"link_type": linkType,
	})

	cypher := fmt.Sprintf(`
		MATCH (a:Record {id: $from_id})-[r:%s]-(b:Record {id: $to_id})
		CREATE (a)-[d:%s]->(b)
		SET d = properties(r), d.link_type = $link_type, d.removal = $provenance, d.run_id = $run_id
		DELETE r
	`, relType(linkType), DeletedLabel)

	err := s.write(ctx, cypher, map[string]any{
		"from_id":    from,
		"to_id":      to,
		"link_type":  linkType,
		"provenance": provenance,
		"run_id":     s.runID,
	})
	if err != nil {
		log.WithError(err).Error("Failed to remove link from graph")
		return fmt.Errorf("failed to remove link from graph: %w", err)
	}

	log.Debug("Removed link from graph")
	return nil
}

// Edges returns a snapshot of the live edges of one type. Each undirected edge appears once.
func (s *LinkStore) Edges(ctx context.Context, linkType string) ([]Edge, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.LinkStore.Edges")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (a:Record)-[r:%s]-(b:Record)
		WHERE a.id < b.id
		RETURN a.id AS from_id, b.id AS to_id, r
		ORDER BY from_id, to_id
	`, relType(linkType))

	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, nil)
		if err != nil {
			return nil, err
		}
		var edges []Edge
		for result.Next(ctx) {
			record := result.Record()
			from, _ := record.Get("from_id")
			to, _ := record.Get("to_id")
			relNode, _ := record.Get("r")
			r := relNode.(neo4j.Relationship)
			edges = append(edges, edgeFromProps(linkType, fmt.Sprint(from), fmt.Sprint(to), r.Props))
		}
		return edges, result.Err()
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to read links from graph")
		return nil, fmt.Errorf("failed to read links from graph: %w", err)
	}
	if res == nil {
		return nil, nil
	}
	return res.([]Edge), nil
}

// PatternCounts counts edges, open triangles, closed triangles and deleted markers of one type.
func (s *LinkStore) PatternCounts(ctx context.Context, linkType string) (PatternCounts, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.LinkStore.PatternCounts")
	defer span.End()

	rel := relType(linkType)
	var counts PatternCounts
	queries := []countQuery{
		{fmt.Sprintf(`MATCH (a:Record)-[r:%s]-(b:Record) WHERE a.id < b.id RETURN count(r) AS n`, rel), &counts.Edges},
		{fmt.Sprintf(`
			MATCH (x:Record)-[:%[1]s]-(y:Record)-[:%[1]s]-(z:Record)
			WHERE x.id < z.id AND NOT (x)-[:%[1]s]-(z)
			RETURN count(*) AS n`, rel), &counts.OpenTriangles},
		{fmt.Sprintf(`
			MATCH (x:Record)-[:%[1]s]-(y:Record)-[:%[1]s]-(z:Record)-[:%[1]s]-(x)
			WHERE x.id < y.id AND y.id < z.id
			RETURN count(*) AS n`, rel), &counts.ClosedTriangles},
		{fmt.Sprintf(`MATCH ()-[d:%s {link_type: $link_type}]->() RETURN count(d) AS n`, DeletedLabel), &counts.Deleted},
	}

	_, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, q := range queries {
			n, err := single(ctx, tx, q.cypher, map[string]any{"link_type": linkType})
			if err != nil {
				return nil, err
			}
			*q.dest = int(n.(int64))
		}
		return nil, nil
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to count graph patterns")
		return PatternCounts{}, fmt.Errorf("failed to count graph patterns: %w", err)
	}
	return counts, nil
}

type countQuery struct {
	cypher string
	dest   *int
}

// single runs a query returning one count column named n.
func single(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) (any, error) {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	if !result.Next(ctx) {
		return int64(0), result.Err()
	}
	n, _ := result.Record().Get("n")
	if n == nil {
		return int64(0), nil
	}
	return n, nil
}

func edgeFromProps(linkType, from, to string, props map[string]any) Edge {
	e := Edge{From: from, To: to, LinkType: linkType}
	if v, ok := props["id"].(string); ok {
		e.ID = v
	}
	switch d := props["distance"].(type) {
	case float64:
		e.Distance, e.HasDistance = d, true
	case int64:
		e.Distance, e.HasDistance = float64(d), true
	}
	if v, ok := props["fields_populated"].(int64); ok {
		e.FieldsPopulated = int(v)
	}
	if v, ok := props["run_id"].(string); ok {
		e.RunID = v
	}
	e.Provenance = stringList(props["provenance"])
	e.Actors = stringList(props["actors"])
	return e
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, fmt.Sprint(item))
	}
	return out
}

// relType maps a link type onto a relationship type: upper case, alphanumerics and underscore only.
func relType(linkType string) string {
	return sanitizeLabel(strings.ToUpper(linkType))
}

func sanitizeLabel(label string) string {
	// Only allow alphanumeric and underscore
	var b strings.Builder
	for _, c := range label {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "LINK"
	}
	return b.String()
}
