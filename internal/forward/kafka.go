package forward

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/IBM/sarama"

	"github.com/voltlog/voltlog/internal/logging"
	"github.com/voltlog/voltlog/pkg/types"
)

// Config contains the Kafka forwarder configuration
type Config struct {
	// Enabled turns forwarding on
	Enabled bool `yaml:"enabled"`

	// Brokers is the list of Kafka broker addresses
	Brokers []string `yaml:"brokers"`

	// Topic is the Kafka topic to send records to
	Topic string `yaml:"topic"`

	// PartitionKey optionally names a record field used as the message key.
	// Records missing the field are sent unkeyed.
	PartitionKey string `yaml:"partition_key,omitempty"`

	// RequiredAcks specifies the number of acknowledgments required (0, 1, -1)
	RequiredAcks int16 `yaml:"required_acks,omitempty"`

	// CompressionCodec specifies the compression codec (none, gzip, snappy, lz4, zstd)
	CompressionCodec string `yaml:"compression_codec,omitempty"`

	// ClientID is the client identifier
	ClientID string `yaml:"client_id,omitempty"`

	// Version is the Kafka protocol version
	Version string `yaml:"version,omitempty"`

	// EnableTLS enables TLS for connections
	EnableTLS bool `yaml:"enable_tls,omitempty"`
}

// DefaultConfig returns default forwarder configuration
func DefaultConfig() Config {
	return Config{
		Enabled:          false,
		Brokers:          []string{"localhost:9092"},
		Topic:            "telemetry",
		RequiredAcks:     1,
		CompressionCodec: "none",
		ClientID:         "voltlog",
		Version:          "3.0.0",
	}
}

// Forwarder publishes accepted records to Kafka. A send failure never
// stops the pipeline; the record stays in the local log either way.
type Forwarder struct {
	config   Config
	producer sarama.SyncProducer
	logger   *logging.Logger
	closed   atomic.Bool

	sent   atomic.Int64
	failed atomic.Int64
}

// New creates a new Kafka forwarder and connects to the brokers
func New(config Config, logger *logging.Logger) (*Forwarder, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("no brokers specified")
	}

	if config.Topic == "" {
		return nil, fmt.Errorf("no topic specified")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.RequiredAcks(config.RequiredAcks)
	saramaConfig.ClientID = config.ClientID

	switch config.CompressionCodec {
	case "gzip":
		saramaConfig.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		saramaConfig.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		saramaConfig.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		saramaConfig.Producer.Compression = sarama.CompressionZSTD
	default:
		saramaConfig.Producer.Compression = sarama.CompressionNone
	}

	if config.Version != "" {
		version, err := sarama.ParseKafkaVersion(config.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid Kafka version: %w", err)
		}
		saramaConfig.Version = version
	}

	if config.EnableTLS {
		saramaConfig.Net.TLS.Enable = true
	}

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &Forwarder{
		config:   config,
		producer: producer,
		logger:   logger.WithComponent("forward"),
	}, nil
}

// Forward sends a single record to the configured topic
func (f *Forwarder) Forward(record types.Record) error {
	if f.closed.Load() {
		return fmt.Errorf("forwarder is closed")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		f.failed.Add(1)
		return fmt.Errorf("failed to encode record: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: f.config.Topic,
		Value: sarama.ByteEncoder(payload),
	}

	if f.config.PartitionKey != "" {
		if key, ok := record[f.config.PartitionKey]; ok {
			msg.Key = sarama.StringEncoder(key)
		}
	}

	partition, offset, err := f.producer.SendMessage(msg)
	if err != nil {
		f.failed.Add(1)
		return fmt.Errorf("failed to send record to Kafka: %w", err)
	}

	f.sent.Add(1)
	f.logger.Debug().
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Record forwarded")

	return nil
}

// Stats returns the number of records sent and failed
func (f *Forwarder) Stats() (sent, failed int64) {
	return f.sent.Load(), f.failed.Load()
}

// Close shuts down the producer
func (f *Forwarder) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	return f.producer.Close()
}
