package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Job is the message handed to the mail worker.
type Job struct {
	To        string    `json:"to"`
	Code      string    `json:"code"`
	TTL       int64     `json:"ttl_seconds"`
	CreatedAt time.Time `json:"created_at"`
}

type producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaSender publishes verification jobs instead of sending mail itself.
type KafkaSender struct {
	producer producer
	topic    string
	logger   *zap.Logger
	now      func() time.Time
}

func NewKafkaSender(p producer, topic string, logger *zap.Logger) *KafkaSender {
	return &KafkaSender{producer: p, topic: topic, logger: logger, now: time.Now}
}

func (s *KafkaSender) SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error {
	value, err := json.Marshal(Job{
		To:        to,
		Code:      code,
		TTL:       int64(ttl / time.Second),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode mail job: %w", err)
	}

	// Keyed by recipient so jobs for one address stay ordered.
	if err := s.producer.ProduceMessage(ctx, s.topic, []byte(to), value,
		map[string]string{"type": "verification_code"}); err != nil {
		return fmt.Errorf("failed to queue mail job: %w", err)
	}
	return nil
}

type consumer interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// Relay consumes mail jobs and delivers them through a Sender.
type Relay struct {
	consumer consumer
	sender   Sender
	logger   *zap.Logger
	now      func() time.Time
}

func NewRelay(c consumer, sender Sender, logger *zap.Logger) *Relay {
	return &Relay{consumer: c, sender: sender, logger: logger, now: time.Now}
}

// Run processes jobs until ctx is done. Jobs whose code has already expired
// are committed without sending.
func (r *Relay) Run(ctx context.Context) error {
	for {
		msg, err := r.consumer.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := r.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Left uncommitted; the group redelivers it after a restart.
			return err
		}

		if err := r.consumer.Commit(ctx, msg); err != nil {
			return err
		}
	}
}

func (r *Relay) handle(ctx context.Context, msg kafka.Message) error {
	var job Job
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		r.logger.Error("Dropping malformed mail job",
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	ttl := time.Duration(job.TTL) * time.Second
	left := job.CreatedAt.Add(ttl).Sub(r.now())
	if left <= 0 {
		r.logger.Warn("Dropping expired mail job", zap.Int64("offset", msg.Offset))
		return nil
	}

	if err := r.sender.SendVerificationCode(ctx, job.To, job.Code, left); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("failed to deliver mail job at offset %d: %w", msg.Offset, err)
	}
	return nil
}
