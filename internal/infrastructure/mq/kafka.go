package mq

import (
	"fmt"

	"kitarcycle/internal/config"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// Producer publishes outbox payloads to Kafka.
type Producer struct {
	producer sarama.SyncProducer
}

// NewKafkaConfig returns the producer settings used for domain events:
// all in-sync replicas must ack, and successes are reported back.
func NewKafkaConfig() *sarama.Config {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = false
	return kafkaConfig
}

// InitKafka dials the brokers. It returns nil, nil when Kafka is disabled.
func InitKafka(cfg *config.KafkaConfig) (*Producer, error) {
	if !cfg.Enabled {
		log.Info("kafka disabled, outbox messages stay pending")
		return nil, nil
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	log.WithField("brokers", cfg.Brokers).Info("kafka producer connected")
	return NewProducer(producer), nil
}

// NewProducer wraps an existing sarama producer, e.g. a mocks.SyncProducer.
func NewProducer(p sarama.SyncProducer) *Producer {
	return &Producer{producer: p}
}

// Publish sends one message and waits for the broker ack.
func (p *Producer) Publish(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"topic":     topic,
		"key":       key,
		"partition": partition,
		"offset":    offset,
	}).Debug("kafka message sent")
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
