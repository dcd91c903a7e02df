package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaMirrorConfig contains configurable parameters for the event mirror.
type KafkaMirrorConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic is the topic terminal outcome events are mirrored to.
	Topic string

	// MaxAttempts is how many times a produce is retried on transient error.
	// Defaults to 3 if <= 0.
	MaxAttempts int

	// WriteTimeout is the per-attempt timeout for Write operations.
	// Defaults to 10s if zero.
	WriteTimeout time.Duration
}

// messageWriter is the slice of kafka.Writer the mirror uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMirror wraps a Store and mirrors every appended event to a Kafka topic
// keyed by product code, so same-product events preserve ordering per
// partition. The wrapped store is the source of truth: a mirror failure is
// logged but never fails the append.
type KafkaMirror struct {
	inner       Store
	writer      messageWriter
	maxAttempts int
}

func NewKafkaMirror(inner Store, cfg KafkaMirrorConfig) (*KafkaMirror, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})

	return &KafkaMirror{inner: inner, writer: w, maxAttempts: cfg.MaxAttempts}, nil
}

func (m *KafkaMirror) Append(ctx context.Context, ev Event) error {
	if err := m.inner.Append(ctx, ev); err != nil {
		return err
	}
	if err := m.produce(ctx, ev); err != nil {
		log.Printf("kafka mirror: %v", err)
	}
	return nil
}

func (m *KafkaMirror) Query(ctx context.Context, f Filter) ([]Event, error) {
	return m.inner.Query(ctx, f)
}

func (m *KafkaMirror) produce(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.ProductCode),
		Value: value,
		Time:  time.Now().UTC(),
	}

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.writer.WriteMessages(attemptCtx, msg)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("produce failed after %d attempts: %w", m.maxAttempts, lastErr)
}

func (m *KafkaMirror) Close() error {
	if m == nil || m.writer == nil {
		return nil
	}
	return m.writer.Close()
}
