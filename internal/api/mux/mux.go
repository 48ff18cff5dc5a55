// Package mux provides support to bind domain level routes
// to the application mux.
package mux

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/sachin5713/unified-site-health-dashboard/internal/api/auth"
	"github.com/sachin5713/unified-site-health-dashboard/internal/api/mid"
	"github.com/sachin5713/unified-site-health-dashboard/internal/api/routes/health"
	"github.com/sachin5713/unified-site-health-dashboard/internal/api/routes/scan"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/web"
)

// Options represent optional parameters.
type Options struct {
	corsOrigin []string
}

// WithCORS provides configuration options for CORS.
func WithCORS(origins []string) func(opts *Options) {
	return func(opts *Options) {
		opts.corsOrigin = origins
	}
}

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build   string
	Log     *logger.Logger
	Tracer  trace.Tracer
	Metrics mid.RequestMetrics
	DB      health.Pinger
	Auth    *auth.Auth
	Scanner scan.Scanner
	Reader  scan.Reader
}

// RouteAdder defines behavior that sets the routes to bind for an instance
// of the service.
type RouteAdder interface {
	Add(app *web.App, cfg Config)
}

// WebAPI constructs a http.Handler with all application routes bound.
func WebAPI(cfg Config, routeAdder RouteAdder, options ...func(opts *Options)) http.Handler {
	logger := func(ctx context.Context, msg string, args ...any) {
		cfg.Log.Info(ctx, msg, args...)
	}

	mws := []web.MidFunc{
		mid.Otel(cfg.Tracer),
		mid.Logger(cfg.Log),
	}
	if cfg.Metrics != nil {
		mws = append(mws, mid.Metrics(cfg.Metrics))
	}
	mws = append(mws, mid.Errors(cfg.Log), mid.Panics())

	app := web.NewApp(logger, cfg.Tracer, mws...)

	var opts Options
	for _, option := range options {
		option(&opts)
	}

	if len(opts.corsOrigin) > 0 {
		app.EnableCORS(opts.corsOrigin)
	}

	routeAdder.Add(app, cfg)

	return app
}
