package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/codewars-bot/internal/config"
	"github.com/codewars-bot/internal/domain"
)

// Producer publishes profile snapshot events to Kafka
type Producer struct {
	topic    string
	producer sarama.SyncProducer
	logger   zerolog.Logger
}

// NewProducer creates a new Kafka snapshot producer
func NewProducer(cfg *config.KafkaConfig, logger zerolog.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.ClientID = cfg.ClientID
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = cfg.RetryAttempts
	saramaConfig.Producer.Retry.Backoff = cfg.RetryDelay
	saramaConfig.Producer.Timeout = cfg.WriteTimeout
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}

	return NewProducerWith(producer, cfg.Topic, logger), nil
}

// NewProducerWith wraps an existing sarama producer
func NewProducerWith(producer sarama.SyncProducer, topic string, logger zerolog.Logger) *Producer {
	return &Producer{
		topic:    topic,
		producer: producer,
		logger:   logger.With().Str("comp", "kafka").Str("topic", topic).Logger(),
	}
}

// PublishSnapshot sends one event keyed by username so a user's snapshots
// stay ordered within a partition
func (p *Producer) PublishSnapshot(ctx context.Context, ev domain.SnapshotEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling snapshot event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(ev.Profile.Username),
		Value:     sarama.ByteEncoder(data),
		Timestamp: ev.Timestamp,
		Headers: []sarama.RecordHeader{
			{Key: []byte("run_id"), Value: []byte(ev.RunID)},
		},
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publishing snapshot of %q: %w", ev.Profile.Username, err)
	}

	p.logger.Debug().
		Str("user", ev.Profile.Username).
		Int32("partition", partition).
		Int64("offset", offset).
		Dur("took", time.Since(start)).
		Msg("snapshot published")
	return nil
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	p.logger.Info().Msg("stopping Kafka producer")
	return p.producer.Close()
}
