package sitehealth

import "errors"

var (
	// ErrRunAlreadyRunning is returned when a run is started while another is in flight.
	ErrRunAlreadyRunning = errors.New("a scan is already running")
	// ErrRunNotRunning is returned when a batch mutation targets a run that is not running.
	ErrRunNotRunning = errors.New("scan run is not running")
	// ErrVersionConflict is returned when a compare-and-swap write lost a race.
	ErrVersionConflict = errors.New("scan run version conflict")
	// ErrRunSuperseded is returned when a continuation belongs to a run that has been replaced.
	ErrRunSuperseded = errors.New("scan run superseded")
	// ErrNoTargets is returned when there is nothing to scan.
	ErrNoTargets = errors.New("No pages found to scan")
	// ErrMissingCredentials is returned when no probe API key is configured.
	ErrMissingCredentials = errors.New("Google API key not configured")
	// ErrTargetNotFound is returned when a target URI is not part of the configured work list.
	ErrTargetNotFound = errors.New("target not found")
	// ErrNoContinuation is returned by a queue claim when nothing is due.
	ErrNoContinuation = errors.New("no continuation due")
	// ErrNoAuditData is returned when a category has no stored records.
	ErrNoAuditData = errors.New("No audit data found for this category")
)
