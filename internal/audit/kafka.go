package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/MrEthical07/couponauth/internal/logging"
)

const defaultKafkaWriteTimeout = 5 * time.Second

// Writer is the subset of kafka.Writer the sink uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a KafkaSink.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaSink publishes events as JSON, keyed by account id so one account's
// events stay ordered within a partition.
//
// Emit runs on the dispatcher goroutine. A failed write is logged and the
// event is lost; audit delivery never blocks an auth decision.
type KafkaSink struct {
	writer  Writer
	timeout time.Duration
	log     logging.Logger
}

// NewKafkaSink dials nothing; kafka.Writer connects lazily on first write.
func NewKafkaSink(cfg KafkaConfig, log logging.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka audit sink requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka audit sink requires a topic")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return NewKafkaSinkWithWriter(w, cfg.WriteTimeout, log), nil
}

// NewKafkaSinkWithWriter allows injecting a test writer.
func NewKafkaSinkWithWriter(w Writer, timeout time.Duration, log logging.Logger) *KafkaSink {
	if timeout <= 0 {
		timeout = defaultKafkaWriteTimeout
	}
	if log == nil {
		log = logging.Discard()
	}
	return &KafkaSink{writer: w, timeout: timeout, log: log}
}

func (s *KafkaSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	value, err := json.Marshal(event)
	if err != nil {
		s.log.Error(ctx, "audit event marshal failed", "event_type", event.EventType, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AccountID),
		Value: value,
		Time:  event.Timestamp,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.log.Warn(ctx, "audit event publish failed", "event_type", event.EventType, "err", err)
	}
}

func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
