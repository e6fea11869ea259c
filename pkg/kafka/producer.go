// Package kafka is the Kafka transport the registry publishes its change
// stream on.
package kafka

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

const DefaultTopic = "sortinghat-operations"

// Writer is the part of kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

type Producer struct {
	writer Writer
	logger ectologger.Logger
	topic  string
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
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(writer, cfg.Topic, logger)
}

// NewProducerWithWriter publishes through w, typically a fake in tests.
func NewProducerWithWriter(w Writer, topic string, logger ectologger.Logger) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Producer{
		writer: w,
		logger: logger,
		topic:  topic,
	}
}

func (p *Producer) Topic() string {
	return p.topic
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Publish writes msgs in one batch. Messages without a topic go to the
// producer's topic.
func (p *Producer) Publish(ctx context.Context, msgs ...kafka.Message) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	if len(msgs) == 0 {
		return nil
	}
	for i := range msgs {
		if msgs[i].Topic == "" {
			msgs[i].Topic = p.topic
		}
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(msgs),
			"topic":      p.topic,
		}).Error("Failed to publish messages")
		return err
	}

	p.logger.WithContext(ctx).WithField("batch_size", len(msgs)).Debug("Published messages")
	return nil
}
