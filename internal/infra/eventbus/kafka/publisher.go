// Package kafka publishes run lifecycle events to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/events"
	"github.com/sachin5713/unified-site-health-dashboard/internal/infra/eventbus/kafka/tracing"
	"github.com/sachin5713/unified-site-health-dashboard/internal/infra/eventbus/serialization"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
)

// Header keys set on every produced message.
const (
	HeaderEventType = "event-type"
	HeaderTimestamp = "event-timestamp"
)

// Config contains the settings needed to reach the cluster.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// PublisherMetrics records publish outcomes per topic.
type PublisherMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
}

var _ events.DomainEventPublisher = (*Publisher)(nil)

// Publisher implements events.DomainEventPublisher on a sarama SyncProducer.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string

	logger  *logger.Logger
	metrics PublisherMetrics
	tracer  trace.Tracer
}

// NewPublisher wraps an existing producer.
func NewPublisher(
	producer sarama.SyncProducer,
	topic string,
	logger *logger.Logger,
	metrics PublisherMetrics,
	tracer trace.Tracer,
) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger.With("component", "kafka_publisher", "topic", topic),
		metrics:  metrics,
		tracer:   tracer,
	}
}

// NewProducerConfig returns the sarama settings used for every producer.
func NewProducerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner

	config.Version = sarama.V3_6_0_0
	return config
}

// ConnectPublisher dials the brokers with exponential backoff.
// It will retry failed connection attempts for up to 5 minutes, starting with 5 second intervals.
func ConnectPublisher(
	cfg *Config,
	logger *logger.Logger,
	metrics PublisherMetrics,
	tracer trace.Tracer,
) (*Publisher, error) {
	var producer sarama.SyncProducer

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 5 * time.Minute
	expBackoff.InitialInterval = 5 * time.Second

	operation := func() error {
		var err error
		producer, err = sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig(cfg.ClientID))
		if err != nil {
			return fmt.Errorf("creating producer: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	return NewPublisher(producer, cfg.Topic, logger, metrics, tracer), nil
}

// PublishDomainEvent sends evt to the configured topic. The routing key keeps
// all events of one run on the same partition.
func (p *Publisher) PublishDomainEvent(ctx context.Context, evt events.DomainEvent, opts ...events.PublishOption) error {
	params := events.ApplyOptions(evt, opts...)

	ctx, span := tracing.StartProducerSpan(ctx, p.topic, params.Key, p.tracer)
	defer span.End()
	span.SetAttributes(attribute.String("event.type", string(evt.Type)))

	msg, err := p.buildMessage(evt, params)
	if err != nil {
		span.RecordError(err)
		p.incError(ctx)
		return fmt.Errorf("failed to serialize payload for event %s: %w", evt.Type, err)
	}

	tracing.InjectTraceContext(ctx, msg)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		p.incError(ctx)
		return fmt.Errorf("failed to send message to kafka topic %s: %w", p.topic, err)
	}

	if p.metrics != nil {
		p.metrics.IncMessagePublished(ctx, p.topic)
	}
	p.logger.Debug(ctx, "Published message to Kafka",
		"partition", partition,
		"offset", offset,
		"event_type", evt.Type,
		"key", params.Key,
	)
	return nil
}

func (p *Publisher) buildMessage(evt events.DomainEvent, params events.PublishParams) (*sarama.ProducerMessage, error) {
	value, err := serialization.EncodePayload(evt.Payload)
	if err != nil {
		return nil, err
	}
	ts, err := serialization.EncodeTimestamp(evt.Timestamp)
	if err != nil {
		return nil, err
	}

	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderEventType), Value: []byte(evt.Type)},
		{Key: []byte(HeaderTimestamp), Value: ts},
	}
	keys := make([]string, 0, len(params.Headers))
	for k := range params.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(params.Headers[k])})
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Value:     sarama.ByteEncoder(value),
		Headers:   headers,
		Timestamp: evt.Timestamp,
	}
	if params.Key != "" {
		msg.Key = sarama.StringEncoder(params.Key)
	}
	return msg, nil
}

func (p *Publisher) incError(ctx context.Context) {
	if p.metrics != nil {
		p.metrics.IncPublishError(ctx, p.topic)
	}
}

// Close flushes and closes the underlying producer.
func (p *Publisher) Close() error { return p.producer.Close() }
