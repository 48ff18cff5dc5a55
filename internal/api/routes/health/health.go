// Package health exposes liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sachin5713/unified-site-health-dashboard/internal/api/errs"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/web"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build string
	Log   *logger.Logger
	// DB is optional; without it readiness always succeeds.
	DB Pinger
}

// Routes binds all the health check endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	app.HandlerFuncNoMid(http.MethodGet, version, "/liveness", liveness(cfg))
	app.HandlerFuncNoMid(http.MethodGet, version, "/readiness", readiness(cfg))
}

// healthResponse represents the response for health check.
type healthResponse struct {
	Status string `json:"status"`
	Build  string `json:"build,omitempty"`
}

// Encode implements the web.Encoder interface.
func (hr healthResponse) Encode() ([]byte, string, error) {
	data, err := json.Marshal(hr)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func liveness(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		return healthResponse{Status: "up", Build: cfg.Build}
	}
}

func readiness(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		if cfg.DB == nil {
			return healthResponse{Status: "ok"}
		}

		ctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		if err := cfg.DB.Ping(ctx); err != nil {
			cfg.Log.Info(ctx, "readiness failure", "ERROR", err)
			return errs.New(errs.Unavailable, err)
		}

		return healthResponse{Status: "ok"}
	}
}
