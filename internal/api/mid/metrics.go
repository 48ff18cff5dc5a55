package mid

import (
	"context"
	"net/http"
	"time"

	"github.com/sachin5713/unified-site-health-dashboard/pkg/web"
)

// RequestMetrics records request counts and latencies.
type RequestMetrics interface {
	IncRequestsTotal(ctx context.Context, method, path string, status int)
	ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration)
}

// Metrics updates request metrics. It must wrap Errors so the recorded
// status is the translated one.
func Metrics(metrics RequestMetrics) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			start := time.Now()
			resp := next(ctx, r)

			status := http.StatusOK
			switch v := resp.(type) {
			case interface{ HTTPStatus() int }:
				status = v.HTTPStatus()
			case error:
				status = http.StatusInternalServerError
			default:
				if resp == nil {
					status = http.StatusNoContent
				}
			}

			route := r.Pattern
			if route == "" {
				route = r.URL.Path
			}
			metrics.IncRequestsTotal(ctx, r.Method, route, status)
			metrics.ObserveRequestDuration(ctx, r.Method, route, time.Since(start))

			return resp
		}

		return h
	}

	return m
}
