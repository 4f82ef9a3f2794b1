// Package notify delivers alert transitions out of band. Delivery happens
// strictly after the run commits: a notification must never describe
// state that failed to persist.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/roach88/reckon/internal/alert"
)

// Notifier delivers one alert transition. Implementations must tolerate
// being called with transitions in any order within a run.
type Notifier interface {
	Notify(ctx context.Context, tr alert.Transition) error
	Close() error
}

// LogNotifier writes transitions to structured logs. The default when no
// broker is configured; also useful in development.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger means slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the transition at a level matching its direction: created
// alerts warn, resolutions inform.
func (n *LogNotifier) Notify(_ context.Context, tr alert.Transition) error {
	attrs := []any{
		"key", tr.Event.Key,
		"kind", string(tr.Event.Kind),
		"state", string(tr.Event.State),
		"occurrences", tr.Event.OccurrenceCount,
	}
	switch tr.Change {
	case alert.ChangeCreated:
		n.logger.Warn("alert created", attrs...)
	case alert.ChangeResolved:
		n.logger.Info("alert resolved", attrs...)
	default:
		n.logger.Debug("alert updated", attrs...)
	}
	return nil
}

// Close implements Notifier.
func (n *LogNotifier) Close() error { return nil }

// KafkaNotifier publishes transitions to a Kafka topic as JSON, keyed by
// alert identity so a compacted topic retains the latest state per alert.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier creates a notifier publishing to topic via brokers.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// Notify publishes the transition. Synchronous with one-broker acks;
// callers treat a failure as delivery lost for this transition only.
func (n *KafkaNotifier) Notify(ctx context.Context, tr alert.Transition) error {
	payload, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("marshal alert transition %s: %w", tr.Event.Key, err)
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(tr.Event.Key),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publish alert transition %s: %w", tr.Event.Key, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
