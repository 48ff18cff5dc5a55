// Package poller samples run progress on a fixed interval and turns each
// snapshot into a view for a Renderer. It stops once the run is no longer
// running and asks for a reload exactly once per running to completed
// transition.
package poller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sachin5713/unified-site-health-dashboard/internal/client"
	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
)

// DefaultInterval is the time between two polls.
const DefaultInterval = 2 * time.Second

// Source serves the snapshots the poller samples.
type Source interface {
	Progress(ctx context.Context) (client.Progress, error)
	Scores(ctx context.Context) ([]domain.CategoryScoreSnapshot, error)
}

// View is the rendered state of one progress snapshot.
type View struct {
	Status     domain.RunStatus
	Percentage int
	StatusLine string
	CurrentURL string
	Categories domain.CategoryStates
	Done       bool
}

// Renderer displays what the poller observes.
type Renderer interface {
	RenderProgress(v View)
	RenderScores(scores []domain.CategoryScoreSnapshot)
	// RenderErrors receives only errors not passed before.
	RenderErrors(errs []domain.RunError)
	// Reload is called once when a watched run completes.
	Reload()
}

// Config configures a Poller.
type Config struct {
	Interval time.Duration
	// AutoPoll starts polling even when the first snapshot is not running.
	AutoPoll bool
}

// Poller drives a Renderer from a Source.
type Poller struct {
	src      Source
	renderer Renderer
	cfg      Config
	logger   *logger.Logger

	lastStatus domain.RunStatus
	runID      string
	seen       map[errorKey]struct{}
}

type errorKey struct {
	index   int
	page    string
	message string
}

// New returns a Poller. A zero interval selects DefaultInterval.
func New(src Source, renderer Renderer, cfg Config, log *logger.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{
		src:      src,
		renderer: renderer,
		cfg:      cfg,
		logger:   log.With("component", "poller"),
		seen:     make(map[errorKey]struct{}),
	}
}

// ErrNotRunning is returned by Start when no run is in progress and
// AutoPoll is off.
var ErrNotRunning = errors.New("no scan is running")

// Start takes an initial snapshot and polls until the run stops. Polling
// only begins when the run is running, AutoPoll is set, or force is true.
// force means the caller has just started a run, so the run counts as
// running even if it has already finished by the first tick.
func (p *Poller) Start(ctx context.Context, force bool) error {
	if force {
		p.lastStatus = domain.RunStatusRunning
	} else {
		prog, err := p.src.Progress(ctx)
		if err != nil {
			return fmt.Errorf("initial progress: %w", err)
		}
		if prog.Status != domain.RunStatusRunning && !p.cfg.AutoPoll {
			p.renderer.RenderProgress(BuildView(prog))
			return ErrNotRunning
		}
		p.lastStatus = prog.Status
		p.runID = prog.RunID
	}
	return p.Run(ctx)
}

// Run ticks every interval until the run is completed or idle, or ctx ends.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := p.Tick(ctx)
			if err != nil {
				p.logger.Warn(ctx, "failed to poll progress", "error", err)
			}
			if done {
				return nil
			}
		}
	}
}

// Tick performs one poll: progress first, then scores. It reports whether
// polling should stop. A failed progress fetch keeps polling.
func (p *Poller) Tick(ctx context.Context) (bool, error) {
	prog, err := p.src.Progress(ctx)
	if err != nil {
		return false, fmt.Errorf("progress: %w", err)
	}

	prev := p.lastStatus
	p.lastStatus = prog.Status

	if prog.RunID != p.runID {
		p.runID = prog.RunID
		clear(p.seen)
	}

	view := BuildView(prog)
	p.renderer.RenderProgress(view)
	if fresh := p.freshErrors(prog.Errors); len(fresh) > 0 {
		p.renderer.RenderErrors(fresh)
	}

	if scores, err := p.src.Scores(ctx); err != nil {
		p.logger.Warn(ctx, "failed to fetch category scores", "error", err)
	} else {
		p.renderer.RenderScores(scores)
	}

	if !view.Done {
		return false, nil
	}
	if prev == domain.RunStatusRunning && prog.Status == domain.RunStatusCompleted {
		p.renderer.Reload()
	}
	return true, nil
}

func (p *Poller) freshErrors(errs []domain.RunError) []domain.RunError {
	var fresh []domain.RunError
	for i, e := range errs {
		k := errorKey{index: i, page: e.TargetLabel, message: e.Message}
		if _, ok := p.seen[k]; ok {
			continue
		}
		p.seen[k] = struct{}{}
		fresh = append(fresh, e)
	}
	return fresh
}

// BuildView derives the rendered state of a snapshot. The percentage counts
// completed categories when category data is present and falls back to the
// page ratio otherwise; a completed run always shows 100.
func BuildView(prog client.Progress) View {
	v := View{
		Status:     prog.Status,
		CurrentURL: prog.CurrentURL,
		Categories: prog.CategoryState,
		Done:       prog.Status == domain.RunStatusCompleted || prog.Status == domain.RunStatusIdle,
	}

	switch {
	case len(prog.CategoryState) > 0:
		v.Percentage = percent(prog.CategoryState.Count(domain.CategoryCompleted), len(prog.CategoryState))
	case prog.TotalPages > 0:
		v.Percentage = percent(prog.ScannedPages, prog.TotalPages)
	}
	if prog.Status == domain.RunStatusCompleted {
		v.Percentage = 100
	}

	switch {
	case prog.CurrentCategory != "":
		v.StatusLine = "Scanning " + string(prog.CurrentCategory) + "..."
	case prog.CurrentTitle != "":
		v.StatusLine = "Scanning: " + prog.CurrentTitle
	default:
		v.StatusLine = "Scanning..."
	}
	return v
}

func percent(n, total int) int {
	return int(math.Round(float64(n) / float64(total) * 100))
}
