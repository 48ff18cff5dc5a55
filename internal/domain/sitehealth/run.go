package sitehealth

import (
	"fmt"
	"math"
	"time"

	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/uuid"
)

// RunError is one failure recorded during a run.
type RunError struct {
	TargetLabel string   `json:"page"`
	Message     string   `json:"message"`
	Category    Category `json:"category,omitempty"`
}

// ScanRun is the single outstanding scan and its progress. It is owned by the
// orchestrator and persisted through RunRepository with compare-and-swap on
// Version. All mutators validate the run is in a state that allows them.
type ScanRun struct {
	id      uuid.UUID
	version int64
	status  RunStatus

	targets     []Target
	targetsDone int

	currentTargetLabel string
	currentTargetURI   string
	currentCategory    Category

	categoryState CategoryStates
	errors        []RunError

	startedAt   time.Time
	completedAt time.Time
	updatedAt   time.Time
}

// NewIdleRun returns the record that exists before any run has started.
func NewIdleRun() *ScanRun {
	return &ScanRun{status: RunStatusIdle}
}

// RunSnapshot is the serialisable form of a ScanRun.
type RunSnapshot struct {
	ID                 uuid.UUID      `json:"run_id"`
	Version            int64          `json:"version"`
	Status             RunStatus      `json:"status"`
	Targets            []Target       `json:"targets"`
	TargetsTotal       int            `json:"total_pages"`
	TargetsDone        int            `json:"scanned_pages"`
	CurrentTargetLabel string         `json:"current_page_title"`
	CurrentTargetURI   string         `json:"current_url"`
	CurrentCategory    Category       `json:"current_category,omitempty"`
	CategoryState      CategoryStates `json:"category_state"`
	Errors             []RunError     `json:"errors"`
	StartedAt          time.Time      `json:"started_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// ReconstructScanRun rebuilds a ScanRun from persisted state without
// re-validating transitions.
func ReconstructScanRun(s RunSnapshot) *ScanRun {
	r := &ScanRun{
		id:                 s.ID,
		version:            s.Version,
		status:             s.Status,
		targets:            append([]Target(nil), s.Targets...),
		targetsDone:        s.TargetsDone,
		currentTargetLabel: s.CurrentTargetLabel,
		currentTargetURI:   s.CurrentTargetURI,
		currentCategory:    s.CurrentCategory,
		categoryState:      s.CategoryState.Clone(),
		errors:             append([]RunError(nil), s.Errors...),
		startedAt:          s.StartedAt,
		updatedAt:          s.UpdatedAt,
	}
	if r.status == "" {
		r.status = RunStatusIdle
	}
	if s.CompletedAt != nil {
		r.completedAt = *s.CompletedAt
	}
	return r
}

// Snapshot returns a copy of the run's state.
func (r *ScanRun) Snapshot() RunSnapshot {
	s := RunSnapshot{
		ID:                 r.id,
		Version:            r.version,
		Status:             r.status,
		Targets:            append([]Target(nil), r.targets...),
		TargetsTotal:       len(r.targets),
		TargetsDone:        r.targetsDone,
		CurrentTargetLabel: r.currentTargetLabel,
		CurrentTargetURI:   r.currentTargetURI,
		CurrentCategory:    r.currentCategory,
		CategoryState:      r.categoryState.Clone(),
		Errors:             append([]RunError(nil), r.errors...),
		StartedAt:          r.startedAt,
		UpdatedAt:          r.updatedAt,
	}
	if s.Errors == nil {
		s.Errors = []RunError{}
	}
	if !r.completedAt.IsZero() {
		t := r.completedAt
		s.CompletedAt = &t
	}
	return s
}

// Clone returns an independent copy of the run.
func (r *ScanRun) Clone() *ScanRun { return ReconstructScanRun(r.Snapshot()) }

// Getters.
func (r *ScanRun) ID() uuid.UUID                 { return r.id }
func (r *ScanRun) Version() int64                { return r.version }
func (r *ScanRun) Status() RunStatus             { return r.status }
func (r *ScanRun) Targets() []Target             { return append([]Target(nil), r.targets...) }
func (r *ScanRun) TargetsTotal() int             { return len(r.targets) }
func (r *ScanRun) TargetsDone() int              { return r.targetsDone }
func (r *ScanRun) CurrentTargetLabel() string    { return r.currentTargetLabel }
func (r *ScanRun) CurrentTargetURI() string      { return r.currentTargetURI }
func (r *ScanRun) CurrentCategory() Category     { return r.currentCategory }
func (r *ScanRun) CategoryState() CategoryStates { return r.categoryState.Clone() }
func (r *ScanRun) Errors() []RunError            { return append([]RunError(nil), r.errors...) }
func (r *ScanRun) StartedAt() time.Time          { return r.startedAt }
func (r *ScanRun) CompletedAt() time.Time        { return r.completedAt }
func (r *ScanRun) UpdatedAt() time.Time          { return r.updatedAt }

// PagePercentage is targets_done / targets_total rounded to a whole percent.
func (r *ScanRun) PagePercentage() int {
	if r.status == RunStatusCompleted {
		return 100
	}
	if len(r.targets) == 0 {
		return 0
	}
	return int(math.Round(float64(r.targetsDone) / float64(len(r.targets)) * 100))
}

// Start resets the run for a new execution over targets. The whole record is
// overwritten; only a running run refuses to start.
func (r *ScanRun) Start(id uuid.UUID, targets []Target, order []Category, now time.Time) error {
	if err := r.status.ValidateTransition(RunStatusRunning); err != nil {
		return err
	}
	if len(targets) == 0 {
		return ErrNoTargets
	}

	r.id = id
	r.status = RunStatusRunning
	r.targets = append([]Target(nil), targets...)
	r.targetsDone = 0
	r.currentTargetLabel = ""
	r.currentTargetURI = ""
	r.currentCategory = ""
	r.categoryState = NewCategoryStates(order)
	r.errors = []RunError{}
	r.startedAt = now
	r.completedAt = time.Time{}
	r.updatedAt = now
	return nil
}

func (r *ScanRun) requireRunning() error {
	if r.status != RunStatusRunning {
		return fmt.Errorf("%w: status is %s", ErrRunNotRunning, r.status)
	}
	return nil
}

// BeginTarget marks the target at index as in flight. targets_done only moves
// forward, so re-processing an earlier index after a resume leaves it alone.
func (r *ScanRun) BeginTarget(index int, now time.Time) error {
	if err := r.requireRunning(); err != nil {
		return err
	}
	if index < 0 || index >= len(r.targets) {
		return fmt.Errorf("target index %d out of range [0,%d)", index, len(r.targets))
	}
	t := r.targets[index]
	if index > r.targetsDone {
		r.targetsDone = index
	}
	r.currentTargetLabel = t.Label()
	r.currentTargetURI = t.URL
	r.updatedAt = now
	return nil
}

// CompleteTarget records that every profile and check for index finished.
func (r *ScanRun) CompleteTarget(index int, now time.Time) error {
	if err := r.requireRunning(); err != nil {
		return err
	}
	if index < 0 || index >= len(r.targets) {
		return fmt.Errorf("target index %d out of range [0,%d)", index, len(r.targets))
	}
	if index+1 > r.targetsDone {
		r.targetsDone = index + 1
	}
	r.updatedAt = now
	return nil
}

// AdvanceCategory moves a category's state forward; disallowed moves are ignored.
func (r *ScanRun) AdvanceCategory(c Category, state CategoryState, now time.Time) (bool, error) {
	if err := r.requireRunning(); err != nil {
		return false, err
	}
	changed := r.categoryState.Advance(c, state)
	r.updatedAt = now
	return changed, nil
}

// SetCurrentCategory sets or, with "", clears the category being processed.
func (r *ScanRun) SetCurrentCategory(c Category, now time.Time) error {
	if err := r.requireRunning(); err != nil {
		return err
	}
	r.currentCategory = c
	r.updatedAt = now
	return nil
}

// RecordError appends an error and, when category is set, marks it failed.
func (r *ScanRun) RecordError(targetLabel, message string, category Category, now time.Time) error {
	if err := r.requireRunning(); err != nil {
		return err
	}
	r.errors = append(r.errors, RunError{TargetLabel: targetLabel, Message: message, Category: category})
	if category != "" {
		r.categoryState.Advance(category, CategoryFailed)
	}
	r.updatedAt = now
	return nil
}

// Complete finishes the run.
func (r *ScanRun) Complete(now time.Time) error {
	if err := r.status.ValidateTransition(RunStatusCompleted); err != nil {
		return err
	}
	r.status = RunStatusCompleted
	r.targetsDone = len(r.targets)
	r.currentTargetLabel = ""
	r.currentTargetURI = ""
	r.currentCategory = ""
	r.completedAt = now
	r.updatedAt = now
	return nil
}

// Touch refreshes the activity timestamp without changing progress.
func (r *ScanRun) Touch(now time.Time) { r.updatedAt = now }

// IsStale reports whether a running run has shown no activity for longer than after.
func (r *ScanRun) IsStale(now time.Time, after time.Duration) bool {
	return r.status == RunStatusRunning && now.Sub(r.updatedAt) > after
}
