// Package kafka publishes major-event alerts to a Kafka topic. Alerting is
// feature-flagged; the batch pipeline itself stays file-in, file-out.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/aqi-anomaly-etl/internal/config"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/domain"
)

// messageWriter is the seam over *kafkago.Writer so tests can capture
// messages without a broker.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// AlertPublisher produces one message per network-wide outage hour.
type AlertPublisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewAlertPublisher creates a Kafka producer for the configured alert topic.
func NewAlertPublisher(cfg *config.Config, logger *slog.Logger) *AlertPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &AlertPublisher{writer: w, logger: logger}
}

// PublishMajorEvents serializes and publishes a file's major events in a
// single WriteMessages call. A nil receiver is a no-op so callers need no
// feature-flag branching.
func (p *AlertPublisher) PublishMajorEvents(ctx context.Context, events []domain.MajorEvent) error {
	if p == nil || len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish major events: %w", err)
	}
	p.logger.Info("major-event alerts published", "count", len(events), "file", events[0].File)
	return nil
}

// Close shuts down the underlying producer.
func (p *AlertPublisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}

// serializeToMessage marshals a MajorEvent into a Kafka message keyed by
// source file so one file's alerts stay on one partition.
func serializeToMessage(event domain.MajorEvent) (kafkago.Message, error) {
	payload := struct {
		File     string `json:"file"`
		Datetime string `json:"datetime"`
		Event    string `json:"event"`
	}{
		File:     event.File,
		Datetime: event.Time.Format(time.RFC3339),
		Event:    event.Event,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize major event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.File),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event", Value: []byte(event.Event)},
		},
	}, nil
}
