// Package events announces indexed documents on Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/whois-cat/ETL/pkg/metrics"
	"github.com/whois-cat/ETL/pkg/models"
	"github.com/whois-cat/ETL/pkg/tracing"
)

const EventTypeIndexed = "document.indexed"

// DocumentEvent tells downstream consumers (cache invalidation, search API) that a
// document was replaced in the index.
type DocumentEvent struct {
	EventType  string    `json:"event_type"`
	Kind       string    `json:"kind"`
	Index      string    `json:"index"`
	DocumentID string    `json:"document_id"`
	Modified   time.Time `json:"modified"`
	Timestamp  time.Time `json:"timestamp"`
	TraceID    string    `json:"trace_id,omitempty"`
}

// MessageWriter is the subset of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

var ErrNoBrokers = errors.New("no kafka brokers configured")

type Producer struct {
	writer  MessageWriter
	topic   string
	brokers []string
	logger  ectologger.Logger
}

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
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	p := NewProducerWithWriter(writer, cfg.Topic, logger)
	p.brokers = cfg.Brokers
	return p
}

func NewProducerWithWriter(writer MessageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{writer: writer, topic: topic, logger: logger}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Ping dials the brokers in order and succeeds on the first one that answers.
func (p *Producer) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return ErrNoBrokers
	}
	var errs []error
	for _, broker := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return conn.Close()
	}
	return errors.Join(errs...)
}

// PublishIndexed emits one document.indexed event keyed by document id,
// so every event for a document lands on the same partition.
func (p *Producer) PublishIndexed(ctx context.Context, kind models.Kind, index string, row models.Row) error {
	ctx, span := tracing.StartSpan(ctx, "events.Producer.PublishIndexed")
	defer span.End()

	event := DocumentEvent{
		EventType:  EventTypeIndexed,
		Kind:       kind.String(),
		Index:      index,
		DocumentID: row.Key(),
		Modified:   row.LastModified().UTC(),
		Timestamp:  time.Now().UTC(),
		TraceID:    tracing.GetTraceID(ctx),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.DocumentID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "kind", Value: []byte(event.Kind)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.EventsPublished.WithLabelValues(event.Kind, "failure").Inc()
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish document event")
		return err
	}

	metrics.EventsPublished.WithLabelValues(event.Kind, "success").Inc()
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":  event.EventType,
		"document_id": event.DocumentID,
		"kind":        event.Kind,
	}).Debug("Published document event")
	return nil
}
