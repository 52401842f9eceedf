// Package kafka publishes notification events to the message bus.
package kafka

import (
	"context"

	"github.com/IBM/sarama"

	"crowdship-engine/internal/logx"
)

var newSyncProducer = sarama.NewSyncProducer

// Publisher wraps a Sarama sync producer.
type Publisher struct {
	producer sarama.SyncProducer
	logger   logx.Logger
}

// NewPublisher creates a new Kafka publisher.
func NewPublisher(logger logx.Logger, brokers []string) (*Publisher, error) {
	// не стартую если у кафки нет настроек
	if len(brokers) == 0 {
		return nil, nil
	}

	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true

	producer, err := newSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Publisher{producer: producer, logger: logger}, nil
}

// Publish sends one message and waits for the broker ack.
func (p *Publisher) Publish(_ context.Context, topic, key string, payload []byte) error {
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return err
	}
	p.logger.Debug("message published",
		logx.String("topic", topic),
		logx.String("key", key),
		logx.Int("partition", int(partition)),
		logx.Int64("offset", offset),
	)
	return nil
}

// Close shuts the producer down.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}
