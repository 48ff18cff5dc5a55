// Package scan binds the scan control and progress endpoints.
package scan

import (
	"context"
	"errors"
	"net/http"

	"github.com/sachin5713/unified-site-health-dashboard/internal/api/auth"
	"github.com/sachin5713/unified-site-health-dashboard/internal/api/errs"
	"github.com/sachin5713/unified-site-health-dashboard/internal/api/mid"
	appsitehealth "github.com/sachin5713/unified-site-health-dashboard/internal/app/sitehealth"
	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/uuid"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/web"
)

// Scanner starts runs.
type Scanner interface {
	StartScan(ctx context.Context) (uuid.UUID, error)
}

// Reader serves progress, scores and findings, and rescans single targets.
type Reader interface {
	Progress(ctx context.Context) (domain.RunSnapshot, error)
	CategoryScores(ctx context.Context) ([]domain.CategoryScoreSnapshot, error)
	AuditData(ctx context.Context, category domain.Category, profile domain.Profile) (domain.AuditData, error)
	SectionIssues(ctx context.Context, category domain.Category, targetURI string) (string, error)
	Statistics(ctx context.Context) (domain.ScanStatistics, error)
	RescanTarget(ctx context.Context, targetURI string) (appsitehealth.RescanResult, error)
}

// Config contains the dependencies needed by the scan handlers.
type Config struct {
	Log     *logger.Logger
	Auth    *auth.Auth
	Scanner Scanner
	Reader  Reader
}

// Routes binds all the scan endpoints. Every route requires the bearer token;
// everything except nonce issuance also requires a valid nonce.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	authen := mid.Authenticate(cfg.Auth)
	nonce := mid.Nonce(cfg.Auth)

	app.HandlerFunc(http.MethodGet, version, "/nonce", issueNonce(cfg), authen)

	app.HandlerFunc(http.MethodPost, version, "/scan", start(cfg), authen, nonce)
	app.HandlerFunc(http.MethodGet, version, "/scan/progress", progress(cfg), authen, nonce)
	app.HandlerFunc(http.MethodGet, version, "/scan/scores", scores(cfg), authen, nonce)
	app.HandlerFunc(http.MethodGet, version, "/scan/statistics", statistics(cfg), authen, nonce)
	app.HandlerFunc(http.MethodGet, version, "/audits", audits(cfg), authen, nonce)
	app.HandlerFunc(http.MethodPost, version, "/targets/rescan", rescan(cfg), authen, nonce)
	app.HandlerFunc(http.MethodGet, version, "/sections/issues", sectionIssues(cfg), authen, nonce)
}

func issueNonce(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		return nonceResponse{Nonce: cfg.Auth.IssueNonce()}
	}
}

func start(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		runID, err := cfg.Scanner.StartScan(ctx)
		if err != nil {
			return toAPIError(err)
		}

		return messageResponse{Message: appsitehealth.MsgScanStarted, RunID: runID.String()}
	}
}

func progress(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		snap, err := cfg.Reader.Progress(ctx)
		if err != nil {
			return toAPIError(err)
		}

		return toProgressResponse(snap)
	}
}

func scores(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		s, err := cfg.Reader.CategoryScores(ctx)
		if err != nil {
			return toAPIError(err)
		}

		return scoresResponse(s)
	}
}

func statistics(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		s, err := cfg.Reader.Statistics(ctx)
		if err != nil {
			return toAPIError(err)
		}

		return statisticsResponse(s)
	}
}

func audits(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		q := auditQuery{
			Category: web.Query(r, "category"),
			Profile:  web.Query(r, "profile"),
		}
		if err := errs.Check(q); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		profile, err := domain.ParseProfile(q.Profile)
		if err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		data, err := cfg.Reader.AuditData(ctx, domain.Category(q.Category), profile)
		if err != nil {
			return toAPIError(err)
		}

		return auditDataResponse(data)
	}
}

func rescan(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		var req rescanRequest
		if err := web.Decode(r, &req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		if err := errs.Check(req); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		res, err := cfg.Reader.RescanTarget(ctx, req.TargetURI)
		if err != nil {
			return toAPIError(err)
		}

		return rescanResponse{HTML: res.HTML, Score: res.Score, Timestamp: res.Timestamp}
	}
}

func sectionIssues(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		q := issuesQuery{
			Category:  web.Query(r, "category"),
			TargetURI: web.Query(r, "target_uri"),
		}
		if err := errs.Check(q); err != nil {
			return errs.New(errs.InvalidArgument, err)
		}

		html, err := cfg.Reader.SectionIssues(ctx, domain.Category(q.Category), q.TargetURI)
		if err != nil {
			return toAPIError(err)
		}

		return htmlResponse{HTML: html}
	}
}

// toAPIError maps pipeline errors onto API error codes. Messages of known
// failures are user facing; anything else is reported as internal.
func toAPIError(err error) *errs.Error {
	var (
		connErr  *appsitehealth.ConnectionTestError
		probeErr *domain.ProbeError
	)

	switch {
	case errors.Is(err, domain.ErrRunAlreadyRunning):
		return errs.Newf(errs.AlreadyExists, "A scan is already running.")
	case errors.Is(err, domain.ErrMissingCredentials), errors.Is(err, domain.ErrNoTargets):
		return errs.New(errs.FailedPrecondition, err)
	case errors.As(err, &connErr):
		return errs.New(errs.FailedPrecondition, connErr)
	case errors.Is(err, domain.ErrTargetNotFound), errors.Is(err, domain.ErrNoAuditData):
		return errs.New(errs.NotFound, err)
	case errors.As(err, &probeErr):
		return errs.New(errs.Unavailable, probeErr)
	default:
		return errs.New(errs.Internal, err)
	}
}
