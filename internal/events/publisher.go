// Package events publishes finalized transcript entries.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"voicelink/internal/domain"
	"voicelink/internal/observability/logging"
	"voicelink/internal/observability/metrics"
)

const eventType = "voice.transcript.final"

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers   []string
	Topic     string
	Principal string
	Enabled   bool
}

// TranscriptEvent is the payload written for every finalized entry.
type TranscriptEvent struct {
	EventType     string    `json:"eventType"`
	SessionID     string    `json:"sessionId"`
	EntryID       string    `json:"entryId"`
	Seq           uint64    `json:"seq"`
	Speaker       string    `json:"speaker"`
	Text          string    `json:"text"`
	IsInterrupted bool      `json:"isInterrupted,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	PublishedAt   time.Time `json:"publishedAt"`
}

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements ports.TranscriptSink. With Kafka disabled it only logs.
type Publisher struct {
	writer    messageWriter
	topic     string
	principal string
	enabled   bool
	log       zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New creates a publisher. A nil or disabled config yields log-only mode.
func New(cfg *Config, m *metrics.Metrics) *Publisher {
	if m == nil {
		m = metrics.Default()
	}
	p := &Publisher{
		log:     logging.WithComponent("events"),
		metrics: m,
		now:     time.Now,
	}

	if cfg == nil {
		p.log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return p
	}
	p.topic = cfg.Topic
	p.principal = cfg.Principal

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		p.log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	p.enabled = true

	p.log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")
	return p
}

// PublishTranscript writes entry keyed by session id so a session's entries
// stay ordered within one partition.
func (p *Publisher) PublishTranscript(ctx context.Context, sessionID string, entry domain.TranscriptEntry) error {
	start := time.Now()

	payload, err := json.Marshal(TranscriptEvent{
		EventType:     eventType,
		SessionID:     sessionID,
		EntryID:       entry.ID,
		Seq:           entry.Seq,
		Speaker:       string(entry.Speaker),
		Text:          entry.Text,
		IsInterrupted: entry.IsInterrupted,
		CreatedAt:     entry.CreatedAt,
		PublishedAt:   p.now().UTC(),
	})
	if err != nil {
		p.log.Error().Err(err).Str("topic", p.topic).Msg("Failed to marshal transcript event")
		return err
	}

	p.log.Debug().
		Str("principal", p.principal).
		Str("topic", p.topic).
		Str("key", sessionID).
		RawJSON("payload", payload).
		Msg("Publishing transcript event")

	if !p.enabled || p.writer == nil {
		p.metrics.RecordSinkPublish(p.topic, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(sessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error().
			Err(err).
			Str("topic", p.topic).
			Str("key", sessionID).
			Msg("Failed to write to Kafka")
		p.metrics.RecordSinkPublish(p.topic, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordSinkPublish(p.topic, nil, time.Since(start).Seconds())
	return nil
}

func (p *Publisher) Enabled() bool {
	return p.enabled
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		p.log.Error().Err(err).Msg("Error closing Kafka writer")
		return err
	}
	return nil
}
