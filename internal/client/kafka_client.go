package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"workflow-dashboard/internal/config"
	"workflow-dashboard/internal/util"
)

type KafkaProducer struct {
	Writer *kafka.Writer
	config config.KafkaConfig
	logger *zap.Logger
}

type KafkaConsumer struct {
	Reader *kafka.Reader
	config config.KafkaConfig
	logger *zap.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		Transport:    &kafka.Transport{TLS: kafkaTLS(cfg)},
	}

	util.Info("Kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.Bool("tls", cfg.TLS))

	return &KafkaProducer{Writer: writer, config: cfg, logger: logger}, nil
}

func NewKafkaConsumer(cfg config.KafkaConfig, topic string, logger *zap.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.GroupID,
		Dialer:         kafkaDialer(cfg),
		MinBytes:       1,
		MaxBytes:       1e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
		MaxWait:        5 * time.Second,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
	})

	util.Info("Kafka consumer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", topic),
		zap.String("group_id", cfg.GroupID))

	return &KafkaConsumer{Reader: reader, config: cfg, logger: logger}, nil
}

func kafkaTLS(cfg config.KafkaConfig) *tls.Config {
	if !cfg.TLS {
		return nil
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

func kafkaDialer(cfg config.KafkaConfig) *kafka.Dialer {
	return &kafka.Dialer{
		TLS:       kafkaTLS(cfg),
		Timeout:   5 * time.Second,
		DualStack: true,
	}
}

func (p *KafkaProducer) Close() error {
	if p.Writer != nil {
		if err := p.Writer.Close(); err != nil {
			p.logger.Error("failed to close Kafka producer", zap.Error(err))
			return err
		}
		p.logger.Info("Kafka producer closed")
	}
	return nil
}

func (c *KafkaConsumer) Close() error {
	if c.Reader != nil {
		if err := c.Reader.Close(); err != nil {
			c.logger.Error("failed to close Kafka consumer", zap.Error(err))
			return err
		}
		c.logger.Info("Kafka consumer closed")
	}
	return nil
}

func (p *KafkaProducer) ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	p.logger.Debug("Produced kafka message",
		zap.String("topic", topic),
		zap.Int("value_size", len(value)))
	return nil
}

// FetchMessage reads the next message without committing it.
func (c *KafkaConsumer) FetchMessage(ctx context.Context) (kafka.Message, error) {
	msg, err := c.Reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to read kafka message: %w", err)
	}
	c.logger.Debug("Consumed kafka message",
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset))
	return msg, nil
}

func (c *KafkaConsumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.Reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit kafka message: %w", err)
	}
	return nil
}

func (p *KafkaProducer) HealthCheck(ctx context.Context) error {
	conn, err := kafkaDialer(p.config).DialContext(ctx, "tcp", p.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(); err != nil {
		return fmt.Errorf("failed to read Kafka partitions: %w", err)
	}
	return nil
}
