// Package routes binds every route group of the dashboard API.
package routes

import (
	"github.com/sachin5713/unified-site-health-dashboard/internal/api/mux"
	"github.com/sachin5713/unified-site-health-dashboard/internal/api/routes/health"
	"github.com/sachin5713/unified-site-health-dashboard/internal/api/routes/scan"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/web"
)

// Routes constructs an add value which provides the implementation of
// RouteAdder for specifying what routes to bind to this instance.
func Routes() add {
	return add{}
}

type add struct{}

// Add implements the RouteAdder interface.
func (add) Add(app *web.App, cfg mux.Config) {
	health.Routes(app, health.Config{
		Build: cfg.Build,
		Log:   cfg.Log,
		DB:    cfg.DB,
	})

	scan.Routes(app, scan.Config{
		Log:     cfg.Log,
		Auth:    cfg.Auth,
		Scanner: cfg.Scanner,
		Reader:  cfg.Reader,
	})
}
