// Package bus carries notify requests and cross-process pushes over Kafka.
//
// Two topics are involved: the notify topic takes requests from the rest of
// the application (the collaborator seam), and the push topic takes already
// persisted notifications that every gateway should try to deliver.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes JSON values to one topic, keyed so that records for the
// same user land on the same partition.
type Publisher struct {
	w writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

func (p *Publisher) Publish(ctx context.Context, key string, v interface{}) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	})
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

// Handler processes one record. Returning a Retryable error asks the
// consumer to try the same record again.
type Handler func(ctx context.Context, m kafka.Message) error

type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

// Retryable marks err as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryable{err: err}
}

// Consumer reads a topic and commits each record once its handler is done
// with it.
type Consumer struct {
	r        reader
	log      *zap.Logger
	attempts int
	backoff  time.Duration
}

// NewConsumer joins groupID on topic. fromLatest skips the backlog, which
// is what a per-process fan-out group wants.
func NewConsumer(brokers []string, topic, groupID string, fromLatest bool, log *zap.Logger) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,
	}
	if fromLatest {
		cfg.StartOffset = kafka.LastOffset
	}
	return &Consumer{
		r:        kafka.NewReader(cfg),
		log:      log.With(zap.String("topic", topic), zap.String("group_id", groupID)),
		attempts: 3,
		backoff:  time.Second,
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("fetch failed, retrying", zap.Error(err))
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		c.handle(ctx, h, m)
		if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Warn("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			return
		}
		var r retryable
		if !errors.As(err, &r) || attempt >= c.attempts {
			c.log.Error("dropping record",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return
		}
		if !sleep(ctx, c.backoff*time.Duration(attempt)) {
			return
		}
	}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
