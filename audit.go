package couponauth

import (
	"io"

	"github.com/MrEthical07/couponauth/internal/audit"
	"github.com/MrEthical07/couponauth/internal/logging"
)

// AuditEvent is one security-relevant outcome.
type AuditEvent = audit.Event

// AuditSink receives audit events from the Engine's dispatcher goroutine.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	KafkaSink      = audit.KafkaSink
	LogSink        = audit.LogSink
	MultiSink      = audit.MultiSink
)

// KafkaSinkConfig configures NewKafkaSink.
type KafkaSinkConfig = audit.KafkaConfig

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewLogSink writes events to log.
func NewLogSink(log logging.Logger) *LogSink {
	return audit.NewLogSink(log)
}

// NewKafkaSink publishes events to a Kafka topic, keyed by account id.
func NewKafkaSink(cfg KafkaSinkConfig, log logging.Logger) (*KafkaSink, error) {
	return audit.NewKafkaSink(cfg, log)
}
