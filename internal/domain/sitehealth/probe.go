package sitehealth

import (
	"fmt"
)

// Credentials authenticate outbound probe requests.
type Credentials struct {
	APIKey string
}

// Empty reports whether no key is configured.
func (c Credentials) Empty() bool { return c.APIKey == "" }

// ProbeResult is the parsed outcome of one probe for a (target, profile) pair.
type ProbeResult struct {
	Audits     []RawAudit
	Categories []RawCategory
}

// RawAudit is one check reported by the probe before classification.
type RawAudit struct {
	ID               string
	Title            string
	Description      string
	Score            *float64
	Items            []RawItem
	OverallSavingsMs *float64
}

// RawItem is one piece of supporting evidence attached to an audit.
type RawItem struct {
	URL      string
	Selector string
}

// RawCategory is a top-level category aggregate reported by the probe.
type RawCategory struct {
	Key   string
	Title string
	Score *float64
}

// ProbeErrorKind is the classification of a terminal probe failure.
type ProbeErrorKind string

const (
	ProbeInvalidTarget    ProbeErrorKind = "invalid-target"
	ProbeUnreachable      ProbeErrorKind = "unreachable"
	ProbeTimeout          ProbeErrorKind = "timeout"
	ProbeTLS              ProbeErrorKind = "tls-failure"
	ProbeEmptyResponse    ProbeErrorKind = "empty-response"
	ProbeQuotaExceeded    ProbeErrorKind = "quota-exceeded"
	ProbeAuthInvalid      ProbeErrorKind = "auth-invalid"
	ProbeNotFound         ProbeErrorKind = "not-found"
	ProbeServerError      ProbeErrorKind = "server-error"
	ProbeMalformedBody    ProbeErrorKind = "malformed-response-body"
	ProbeHTTPStatus       ProbeErrorKind = "http-status"
	ProbeRetriesExhausted ProbeErrorKind = "retries-exhausted"
	ProbeUnexpected       ProbeErrorKind = "unexpected"
)

// User facing messages for each classification.
const (
	MsgInvalidTarget    = "The provided URL is not valid."
	MsgUnreachable      = "This site is not accessible from Google API (local environment)."
	MsgTimeout          = "Request timeout. The Google PageSpeed Insights API is taking longer than expected. This may be due to the site being slow or the API being busy. Please try again in a few minutes."
	MsgTLS              = "SSL connection error. Please check your server SSL configuration."
	MsgEmptyResponse    = "Empty reply from server. The Google API may be temporarily unavailable."
	MsgAuthInvalid      = "API key is invalid or quota exceeded."
	MsgNotFound         = "Google PageSpeed Insights API not found."
	MsgQuotaExceeded    = "API quota exceeded. Please try again later."
	MsgServerError      = "Google API server error. Please try again later."
	MsgMalformedBody    = "Invalid JSON response from Google API"
	MsgRetriesExhausted = "Request failed after multiple attempts. Please try again later."
)

// ProbeError is a classified probe failure. Message is safe to show to users;
// the raw transport error is kept in Cause for logs only.
type ProbeError struct {
	Kind       ProbeErrorKind
	Message    string
	StatusCode int
	Attempts   int
	Cause      error
}

// Error implements error and returns the user facing message.
func (e *ProbeError) Error() string { return e.Message }

// Unwrap exposes the underlying transport error.
func (e *ProbeError) Unwrap() error { return e.Cause }

// Retryable reports whether another attempt may succeed. Only timeouts are retried.
func (e *ProbeError) Retryable() bool { return e.Kind == ProbeTimeout }

// Category is the category the failure is attributed to. Probe failures
// belong to the metrics category.
func (e *ProbeError) Category() Category { return CategoryPerformance }

// NewProbeError builds a ProbeError whose message is the fixed text for kind.
// Kinds without fixed text (http-status, unexpected) derive it from the
// status code or detail.
func NewProbeError(kind ProbeErrorKind, statusCode int, detail string, cause error) *ProbeError {
	return &ProbeError{
		Kind:       kind,
		Message:    messageFor(kind, statusCode, detail),
		StatusCode: statusCode,
		Cause:      cause,
	}
}

func messageFor(kind ProbeErrorKind, statusCode int, detail string) string {
	switch kind {
	case ProbeInvalidTarget:
		return MsgInvalidTarget
	case ProbeUnreachable:
		return MsgUnreachable
	case ProbeTimeout:
		return MsgTimeout
	case ProbeTLS:
		return MsgTLS
	case ProbeEmptyResponse:
		return MsgEmptyResponse
	case ProbeQuotaExceeded:
		return MsgQuotaExceeded
	case ProbeAuthInvalid:
		return MsgAuthInvalid
	case ProbeNotFound:
		return MsgNotFound
	case ProbeServerError:
		return MsgServerError
	case ProbeMalformedBody:
		return MsgMalformedBody
	case ProbeRetriesExhausted:
		return MsgRetriesExhausted
	case ProbeHTTPStatus:
		return fmt.Sprintf("HTTP Error %d: Request failed.", statusCode)
	default:
		if detail == "" {
			detail = "Unknown API error"
		}
		return "Unexpected error: " + detail
	}
}

// ConnectionTestMessage wraps a probe failure for the pre-run connectivity check.
func ConnectionTestMessage(err error) string {
	return "API connection test failed: " + err.Error()
}
