// Package publish forwards engine batches to Kafka.
package publish

import (
	"context"
	"encoding/json"
	"strconv"

	"lob/internal/engine"
	"lob/internal/logger"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
}

// Publisher writes one message per batch, keyed by instrument so a single
// partition carries each market in order. Write failures are returned for
// the engine to log.
type Publisher struct {
	writer MessageWriter
	log    *logger.Logger
}

func NewPublisher(cfg Config, log *logger.Logger) *Publisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	})
	return NewPublisherWithWriter(w, log)
}

func NewPublisherWithWriter(w MessageWriter, log *logger.Logger) *Publisher {
	return &Publisher{writer: w, log: log}
}

func (p *Publisher) Publish(ctx context.Context, b engine.Batch) error {
	value, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "encode batch")
	}
	msg := kafka.Message{
		Key:   []byte(b.Instrument),
		Value: value,
		Headers: []kafka.Header{
			{Key: "sequence", Value: []byte(strconv.FormatUint(b.Sequence, 10))},
			{Key: "command", Value: []byte(b.Command.Kind)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish batch %s/%d", b.Instrument, b.Sequence)
	}
	return nil
}

func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return errors.Wrap(err, "close kafka writer")
	}
	p.log.Info("kafka publisher closed")
	return nil
}
