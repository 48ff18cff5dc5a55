package tracing

import (
	"context"

	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// StartProducerSpan opens a producer span for one event. The key is the run
// id the message is partitioned by.
func StartProducerSpan(ctx context.Context, topic, key string, tracer trace.Tracer) (context.Context, trace.Span) {
	return tracer.Start(ctx, "kafka.produce",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(topic),
			semconv.MessagingOperationPublish,
			semconv.MessagingKafkaMessageKey(key),
		),
	)
}
