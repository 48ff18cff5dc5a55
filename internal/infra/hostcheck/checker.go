// Package hostcheck runs the site checks that are not backed by the probe:
// transport security, leaked secrets and the versions of the hosting stack.
package hostcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
)

// Check names.
const (
	NameHTTPS           = "Site served over HTTPS"
	NameSecrets         = "No secrets exposed in page source"
	NameRuntimeVersion  = "Runtime Version"
	NameDatabaseVersion = "Database Version"
)

const maxPageBytes = 5 << 20

// minRuntime is the oldest Go release still receiving security fixes.
var minRuntime = semver.MustParse("1.22.0")

// Checker implements sitehealth.HostChecker.
type Checker struct {
	secrets *SecretScanner
	db      sitehealth.VersionReporter
	http    *http.Client

	runtimeVersion func() string

	logger *logger.Logger
	tracer trace.Tracer
}

var _ sitehealth.HostChecker = (*Checker)(nil)

// NewChecker creates a Checker. db may be nil to skip the database check and
// a nil httpClient uses an instrumented client with a 30s timeout.
func NewChecker(
	secrets *SecretScanner,
	db sitehealth.VersionReporter,
	httpClient *http.Client,
	log *logger.Logger,
	tracer trace.Tracer,
) *Checker {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Checker{
		secrets:        secrets,
		db:             db,
		http:           httpClient,
		runtimeVersion: runtime.Version,
		logger:         log.With("component", "host_checker"),
		tracer:         tracer,
	}
}

// Check runs every host check for target. Only a failing database lookup
// is returned as an error; page fetch problems become info findings.
func (c *Checker) Check(ctx context.Context, target sitehealth.Target) ([]sitehealth.HostCheck, error) {
	ctx, span := c.tracer.Start(ctx, "hostcheck.check",
		trace.WithAttributes(attribute.String("target_uri", target.URL)))
	defer span.End()

	checks := []sitehealth.HostCheck{httpsCheck(target.URL)}

	if c.secrets != nil {
		checks = append(checks, c.secretsCheck(ctx, target.URL))
	}

	checks = append(checks, runtimeCheck(c.runtimeVersion()))

	if c.db != nil {
		v, err := c.db.Version(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "database version lookup failed")
			return nil, fmt.Errorf("database version: %w", err)
		}
		checks = append(checks, sitehealth.HostCheck{
			Category:    sitehealth.CategoryHostHealth,
			Name:        NameDatabaseVersion,
			Score:       sitehealth.Float(1),
			Description: v,
			Severity:    sitehealth.SeverityGood,
		})
	}

	span.SetAttributes(attribute.Int("check_count", len(checks)))
	span.SetStatus(codes.Ok, "host checks completed")
	return checks, nil
}

func httpsCheck(rawURL string) sitehealth.HostCheck {
	check := sitehealth.HostCheck{Category: sitehealth.CategorySecurity, Name: NameHTTPS}
	u, err := url.Parse(rawURL)
	if err == nil && strings.EqualFold(u.Scheme, "https") {
		check.Score = sitehealth.Float(1)
		check.Description = "The page is served over an encrypted connection."
		check.Severity = sitehealth.SeverityGood
		return check
	}
	check.Score = sitehealth.Float(0)
	check.Description = "The page is not served over HTTPS."
	check.AffectedElement = rawURL
	check.Severity = sitehealth.SeverityWarning
	return check
}

func (c *Checker) secretsCheck(ctx context.Context, rawURL string) sitehealth.HostCheck {
	check := sitehealth.HostCheck{Category: sitehealth.CategorySecurity, Name: NameSecrets}

	body, err := c.fetch(ctx, rawURL)
	if err != nil {
		c.logger.Warn(ctx, "page source fetch failed", "target_uri", rawURL, "error", err)
		check.Description = "Page source could not be fetched: " + err.Error()
		check.Severity = sitehealth.SeverityInfo
		return check
	}
	defer body.Close()

	findings, err := c.secrets.Scan(ctx, io.LimitReader(body, maxPageBytes))
	if err != nil {
		check.Description = "Page source could not be scanned: " + err.Error()
		check.Severity = sitehealth.SeverityInfo
		return check
	}

	if len(findings) == 0 {
		check.Score = sitehealth.Float(1)
		check.Description = "No credentials or keys were found in the page source."
		check.Severity = sitehealth.SeverityGood
		return check
	}

	check.Score = sitehealth.Float(0)
	check.Description = fmt.Sprintf("%d potential secrets found in the page source.", len(findings))
	check.AffectedElement = findings[0].RuleID
	check.Severity = sitehealth.SeverityCritical
	return check
}

func (c *Checker) fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func runtimeCheck(version string) sitehealth.HostCheck {
	check := sitehealth.HostCheck{
		Category:    sitehealth.CategoryHostHealth,
		Name:        NameRuntimeVersion,
		Description: "Go runtime " + version,
	}
	if runtimeSupported(version) {
		check.Score = sitehealth.Float(1)
		check.Severity = sitehealth.SeverityGood
		return check
	}
	check.Score = sitehealth.Float(0.7)
	check.AffectedElement = version
	check.Severity = sitehealth.SeverityWarning
	return check
}

// runtimeSupported reports whether a runtime.Version string is at least
// minRuntime. Development builds count as supported.
func runtimeSupported(version string) bool {
	if strings.HasPrefix(version, "devel") {
		return true
	}
	v, err := semver.NewVersion(strings.TrimPrefix(version, "go"))
	if err != nil {
		return false
	}
	return !v.LessThan(minRuntime)
}
