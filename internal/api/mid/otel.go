package mid

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/otel"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/web"
)

// TraceIDHeader echoes the request's trace id so dashboard errors can be
// matched with server logs.
const TraceIDHeader = "X-Trace-ID"

// Otel stores the tracer in the context, tags the request span with the
// matched route and returns the trace id to the caller.
func Otel(tracer trace.Tracer) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			ctx = otel.InjectTracing(ctx, tracer)

			span := trace.SpanFromContext(ctx)
			span.SetAttributes(attribute.String("http.route", r.Pattern))

			if w := web.GetWriter(ctx); w != nil {
				w.Header().Set(TraceIDHeader, otel.GetTraceID(ctx))
			}

			return next(ctx, r)
		}

		return h
	}

	return m
}
