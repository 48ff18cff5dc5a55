package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/events"
	"github.com/sachin5713/unified-site-health-dashboard/internal/infra/eventbus/serialization"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
)

type countingMetrics struct {
	published, failed int
}

func (m *countingMetrics) IncMessagePublished(context.Context, string) { m.published++ }
func (m *countingMetrics) IncPublishError(context.Context, string)     { m.failed++ }

func header(msg *sarama.ProducerMessage, key string) []byte {
	for _, h := range msg.Headers {
		if string(h.Key) == key {
			return h.Value
		}
	}
	return nil
}

func TestPublisher_PublishDomainEvent(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	producer := mocks.NewSyncProducer(t, NewProducerConfig("test"))
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "sitehealth-events", msg.Topic)

		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "run-1", string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)

		evt, err := serialization.Decode(
			string(header(msg, HeaderEventType)),
			string(key),
			header(msg, HeaderTimestamp),
			value,
		)
		require.NoError(t, err)
		assert.Equal(t, events.EventTypeRunCompleted, evt.Type)
		assert.True(t, now.Equal(evt.Timestamp))
		assert.Equal(t, float64(2), evt.Payload["error_count"])
		assert.Equal(t, "ops", string(header(msg, "origin")))
		return nil
	})

	metrics := new(countingMetrics)
	pub := NewPublisher(producer, "sitehealth-events", logger.Noop(), metrics, noop.NewTracerProvider().Tracer("test"))

	evt := events.NewDomainEvent(events.EventTypeRunCompleted, "run-1", now, map[string]any{"error_count": 2})
	err := pub.PublishDomainEvent(context.Background(), evt, events.WithHeaders(map[string]string{"origin": "ops"}))

	require.NoError(t, err)
	assert.Equal(t, 1, metrics.published)
	assert.Equal(t, 0, metrics.failed)
	require.NoError(t, pub.Close())
}

func TestPublisher_PublishDomainEvent_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewProducerConfig("test"))
	producer.ExpectSendMessageAndFail(errors.New("leader not available"))

	metrics := new(countingMetrics)
	pub := NewPublisher(producer, "sitehealth-events", logger.Noop(), metrics, noop.NewTracerProvider().Tracer("test"))

	evt := events.NewDomainEvent(events.EventTypeRunStarted, "run-1", time.Now(), nil)
	err := pub.PublishDomainEvent(context.Background(), evt)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sitehealth-events")
	assert.Equal(t, 1, metrics.failed)
	require.NoError(t, pub.Close())
}

func TestPublisher_PublishDomainEvent_BadPayload(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewProducerConfig("test"))

	metrics := new(countingMetrics)
	pub := NewPublisher(producer, "sitehealth-events", logger.Noop(), metrics, noop.NewTracerProvider().Tracer("test"))

	evt := events.NewDomainEvent(events.EventTypeRunStarted, "run-1", time.Now(), map[string]any{"bad": struct{}{}})
	err := pub.PublishDomainEvent(context.Background(), evt)

	require.Error(t, err)
	assert.Equal(t, 1, metrics.failed)
	require.NoError(t, pub.Close())
}
