// Package pagespeed implements the probe client against the Google
// PageSpeed Insights v5 API.
package pagespeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
)

// DefaultEndpoint is the public runPagespeed endpoint.
const DefaultEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

const maxBodyBytes = 32 << 20

// Metrics records probe outcomes.
type Metrics interface {
	IncProbeAttempt(ctx context.Context, profile string)
	ObserveProbe(ctx context.Context, profile, outcome string, d time.Duration)
}

// Config configures the client.
type Config struct {
	Endpoint    string
	Timeout     time.Duration
	RetryDelay  time.Duration
	MaxAttempts int
	Categories  []string
	UserAgent   string
	// RequestsPerMinute caps outbound requests; zero disables the limit.
	RequestsPerMinute float64
}

// DefaultConfig returns a 60s per-attempt timeout and two attempts 5s apart.
func DefaultConfig() Config {
	return Config{
		Endpoint:    DefaultEndpoint,
		Timeout:     60 * time.Second,
		RetryDelay:  5 * time.Second,
		MaxAttempts: 2,
		Categories:  []string{"performance", "seo", "accessibility", "best-practices"},
		UserAgent:   "unified-site-health-dashboard",
	}
}

// Client issues probe requests.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *common.RateLimiter
	metrics Metrics

	logger *logger.Logger
	tracer trace.Tracer
}

var _ sitehealth.Prober = (*Client)(nil)

// NewClient creates a Client. A nil httpClient uses an otelhttp instrumented
// default transport.
func NewClient(cfg Config, httpClient *http.Client, metrics Metrics, log *logger.Logger, tracer trace.Tracer) *Client {
	def := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: common.NewRateLimiter(cfg.RequestsPerMinute, 1),
		metrics: metrics,
		logger:  log.With("component", "pagespeed_client"),
		tracer:  tracer,
	}
}

// Probe fetches the result for targetURI under profile. Timeouts are retried
// up to MaxAttempts in total with RetryDelay between attempts; every other
// failure is returned immediately as a *sitehealth.ProbeError.
func (c *Client) Probe(
	ctx context.Context,
	targetURI string,
	profile sitehealth.Profile,
	creds sitehealth.Credentials,
) (*sitehealth.ProbeResult, error) {
	ctx, span := c.tracer.Start(ctx, "pagespeed.probe",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("target_uri", targetURI),
			attribute.String("profile", profile.String()),
		))
	defer span.End()

	if creds.Empty() {
		span.SetStatus(codes.Error, "missing credentials")
		return nil, sitehealth.ErrMissingCredentials
	}

	var (
		result   *sitehealth.ProbeResult
		attempts int
	)

	operation := func() error {
		attempts++
		res, err := c.attempt(ctx, targetURI, profile, creds)
		if err == nil {
			result = res
			return nil
		}

		var pe *sitehealth.ProbeError
		if errors.As(err, &pe) && pe.Retryable() && ctx.Err() == nil {
			span.AddEvent("probe_attempt_timed_out", trace.WithAttributes(attribute.Int("attempt", attempts)))
			c.logger.Warn(ctx, "probe attempt timed out",
				"target_uri", targetURI,
				"profile", profile,
				"attempt", attempts,
			)
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryDelay), uint64(c.cfg.MaxAttempts-1)),
		ctx,
	)

	err := backoff.Retry(operation, policy)
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err == nil {
		span.SetStatus(codes.Ok, "probe succeeded")
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		span.RecordError(ctxErr)
		span.SetStatus(codes.Error, "probe canceled")
		return nil, fmt.Errorf("probe canceled: %w", ctxErr)
	}

	var pe *sitehealth.ProbeError
	if !errors.As(err, &pe) {
		pe = sitehealth.NewProbeError(sitehealth.ProbeRetriesExhausted, 0, "", err)
	}
	pe.Attempts = attempts

	span.RecordError(err)
	span.SetStatus(codes.Error, pe.Message)
	c.logger.Warn(ctx, "probe failed",
		"target_uri", targetURI,
		"profile", profile,
		"kind", pe.Kind,
		"attempts", attempts,
		"error", pe.Cause,
	)
	return nil, pe
}

// TestConnection issues a single mobile probe without retries.
func (c *Client) TestConnection(ctx context.Context, targetURI string, creds sitehealth.Credentials) error {
	ctx, span := c.tracer.Start(ctx, "pagespeed.test_connection",
		trace.WithAttributes(attribute.String("target_uri", targetURI)))
	defer span.End()

	if creds.Empty() {
		return sitehealth.ErrMissingCredentials
	}

	if _, err := c.attempt(ctx, targetURI, sitehealth.ProfileMobile, creds); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connection test failed")
		return err
	}
	span.SetStatus(codes.Ok, "connection ok")
	return nil
}

func (c *Client) buildURL(targetURI string, profile sitehealth.Profile, creds sitehealth.Credentials) (string, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("url", targetURI)
	q.Set("strategy", profile.String())
	q.Set("key", creds.APIKey)
	for _, cat := range c.cfg.Categories {
		q.Add("category", cat)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) attempt(
	ctx context.Context,
	targetURI string,
	profile sitehealth.Profile,
	creds sitehealth.Credentials,
) (res *sitehealth.ProbeResult, err error) {
	start := time.Now()
	outcome := "success"
	if c.metrics != nil {
		c.metrics.IncProbeAttempt(ctx, profile.String())
		defer func() {
			var pe *sitehealth.ProbeError
			if errors.As(err, &pe) {
				outcome = string(pe.Kind)
			} else if err != nil {
				outcome = "error"
			}
			c.metrics.ObserveProbe(ctx, profile.String(), outcome, time.Since(start))
		}()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	apiURL, err := c.buildURL(targetURI, profile, creds)
	if err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, sitehealth.NewProbeError(sitehealth.ProbeInvalidTarget, 0, err.Error(), err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, classifyStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyTransportError(err)
	}
	if len(body) == 0 {
		return nil, sitehealth.NewProbeError(sitehealth.ProbeEmptyResponse, resp.StatusCode, "", nil)
	}

	var doc apiResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, sitehealth.NewProbeError(sitehealth.ProbeMalformedBody, resp.StatusCode, "", err)
	}
	if doc.Error != nil {
		return nil, classifyAPIError(doc.Error)
	}

	return doc.LighthouseResult.toProbeResult(), nil
}
