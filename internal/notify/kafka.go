// Package notify publishes run-completion events so downstream consumers
// can react to fresh data without polling the run table.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"sentrydeck/internal/etl"
)

// Config holds the Kafka settings for run notifications.
type Config struct {
	// Enabled turns the notifier on. Off by default.
	Enabled bool `yaml:"enabled"`

	// Brokers is the list of bootstrap broker addresses.
	Brokers []string `yaml:"brokers"`

	// Topic is the topic run completions are written to.
	Topic string `yaml:"topic"`

	// WriteTimeout bounds a single produce call.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns the notifier defaults.
func DefaultConfig() Config {
	return Config{
		Brokers:      []string{"localhost:9092"},
		Topic:        "sentrydeck.ingest.runs",
		WriteTimeout: 10 * time.Second,
	}
}

// Validate checks the config when the notifier is enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("notify: at least one broker is required")
	}
	if c.Topic == "" {
		return fmt.Errorf("notify: topic is required")
	}
	return nil
}

// KafkaNotifier writes one message per completed ingest run.
type KafkaNotifier struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaNotifier creates a notifier for the configured topic.
func NewKafkaNotifier(cfg Config, logger *slog.Logger) (*KafkaNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
	}

	logger.Info("run notifier initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
	)
	return &KafkaNotifier{writer: writer, logger: logger}, nil
}

// RunCompleted publishes the run report, keyed by run id so consumers
// see per-run updates in order.
func (n *KafkaNotifier) RunCompleted(ctx context.Context, report etl.Report) error {
	value, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("notify: marshal report: %w", err)
	}

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(report.RunID.String()),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("notify: write run completion: %w", err)
	}

	n.logger.Debug("run completion published",
		"run_id", report.RunID,
		"status", report.Status,
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
