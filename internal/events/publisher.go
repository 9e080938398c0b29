// Package events mirrors pipeline output onto Kafka topics for
// downstream consumers. The mirror is best-effort and optional: with
// no brokers configured the publisher runs in log-only mode.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/b00ls0ck3t/Polyglot/internal/models"
	"github.com/b00ls0ck3t/Polyglot/internal/observability/metrics"
)

// Publisher publishes speech units and translated turns to separate
// Kafka topics, keyed by session so per-session order is preserved.
type Publisher struct {
	writerUnits *kafka.Writer
	writerTurns *kafka.Writer
	principal   string
	topicUnits  string
	topicTurns  string
	enabled     bool
	metrics     *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers    []string
	TopicUnits string
	TopicTurns string
	Principal  string
	Enabled    bool
}

// New creates a Kafka event publisher. A nil or disabled config yields
// a publisher that only logs.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{enabled: false, metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:  cfg.Principal,
			topicUnits: cfg.TopicUnits,
			topicTurns: cfg.TopicTurns,
			enabled:    false,
			metrics:    m,
		}
	}

	// Longer dial timeouts for DNS resolution in Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicUnits", cfg.TopicUnits).
		Str("topicTurns", cfg.TopicTurns).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerUnits: newWriter(cfg.TopicUnits),
		writerTurns: newWriter(cfg.TopicTurns),
		principal:   cfg.Principal,
		topicUnits:  cfg.TopicUnits,
		topicTurns:  cfg.TopicTurns,
		enabled:     true,
		metrics:     m,
	}
}

// PublishUnit mirrors one speech unit to the units topic.
func (p *Publisher) PublishUnit(ctx context.Context, unit models.SpeechUnit) error {
	return p.publish(ctx, p.writerUnits, p.topicUnits, models.EventUnit, unit.SessionID, unit)
}

// PublishTurn mirrors one translated turn to the turns topic.
func (p *Publisher) PublishTurn(ctx context.Context, turn models.TranslatedTurn) error {
	return p.publish(ctx, p.writerTurns, p.topicTurns, models.EventTranslation, turn.Turn.SessionID, turn)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerUnits != nil {
		if e := p.writerUnits.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing units writer")
			err = e
		}
	}
	if p.writerTurns != nil {
		if e := p.writerTurns.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing turns writer")
			err = e
		}
	}
	return err
}
