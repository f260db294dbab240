// Package events publishes link lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/linkage"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	LinkCreated = "link.created"
	LinkAdded   = "link.added"
	LinkDeleted = "link.deleted"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles Kafka event emission
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
	runID  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
	RunID        string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer, cfg.Topic, cfg.RunID, logger)
}

func newProducer(writer messageWriter, topic, runID string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
		runID:  runID,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// LinkEvent represents an event about a link
type LinkEvent struct {
	EventType       string    `json:"event_type"`
	LinkID          string    `json:"link_id,omitempty"`
	LinkType        string    `json:"link_type"`
	RunID           string    `json:"run_id,omitempty"`
	From            string    `json:"from"`
	FromRole        string    `json:"from_role,omitempty"`
	To              string    `json:"to"`
	ToRole          string    `json:"to_role,omitempty"`
	Distance        float64   `json:"distance"`
	FieldsPopulated int       `json:"fields_populated,omitempty"`
	Provenance      []string  `json:"provenance,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// LinkExists always reports false: an event stream cannot be queried for earlier links.
func (p *Producer) LinkExists(context.Context, linkage.Link) (bool, error) {
	return false, nil
}

// CreateLink publishes a link.created event.
func (p *Producer) CreateLink(ctx context.Context, l linkage.Link) error {
	return p.Publish(ctx, &LinkEvent{
		EventType:       LinkCreated,
		LinkID:          l.ID,
		LinkType:        l.LinkType,
		From:            l.Role1.RecordID,
		FromRole:        l.Role1.RoleType,
		To:              l.Role2.RecordID,
		ToRole:          l.Role2.RoleType,
		Distance:        l.Distance,
		FieldsPopulated: l.FieldsPopulated,
		Provenance:      l.Provenance,
	})
}

// AddEdge publishes a link.added event for an edge introduced by resolution.
func (p *Producer) AddEdge(ctx context.Context, e graph.Edge) error {
	return p.Publish(ctx, &LinkEvent{
		EventType:       LinkAdded,
		LinkID:          e.ID,
		LinkType:        e.LinkType,
		RunID:           e.RunID,
		From:            e.From,
		To:              e.To,
		Distance:        e.Distance,
		FieldsPopulated: e.FieldsPopulated,
		Provenance:      e.Provenance,
	})
}

// RemoveEdge publishes a link.deleted event.
func (p *Producer) RemoveEdge(ctx context.Context, linkType, from, to string, provenance []string) error {
	return p.Publish(ctx, &LinkEvent{
		EventType:  LinkDeleted,
		LinkType:   linkType,
		From:       from,
		To:         to,
		Provenance: provenance,
	})
}

// Publish publishes one event keyed by its link type and node pair.
func (p *Producer) Publish(ctx context.Context, event *LinkEvent) error {
	return p.PublishBatch(ctx, []*LinkEvent{event})
}

// PublishBatch publishes events in a single write.
func (p *Producer) PublishBatch(ctx context.Context, events []*LinkEvent) error {
	ctx, span := tracing.StartSpan(ctx, "events.Producer.PublishBatch")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
		"topic":      p.topic,
	})

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		if event.RunID == "" {
			event.RunID = p.runID
		}

		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal link event: %w", err)
		}

		headers := []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "link_type", Value: []byte(event.LinkType)},
			{Key: "schema_version", Value: []byte("1.0")},
		}
		if traceID := tracing.GetTraceID(ctx); traceID != "" {
			headers = append(headers, kafka.Header{Key: "trace_id", Value: []byte(traceID)})
		}

		messages[i] = kafka.Message{
			Topic:   p.topic,
			Key:     []byte(event.LinkType + ":" + event.From + ":" + event.To),
			Value:   data,
			Headers: headers,
		}
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		for _, event := range events {
			metrics.RecordLinkEvent(event.EventType, "failure")
		}
		log.WithError(err).Error("Failed to publish link events")
		return fmt.Errorf("failed to publish link events: %w", err)
	}

	for _, event := range events {
		metrics.RecordLinkEvent(event.EventType, "success")
	}
	log.Debug("Published link events")
	return nil
}
