// Package run repeats the fill-and-submit cycle against a form.
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"formpilot/internal/form"
	"formpilot/internal/logging"
	"formpilot/internal/store"
)

// ErrNoPasses is returned when a run is asked for fewer than one pass.
var ErrNoPasses = errors.New("at least one pass is required")

// Session is the page a run drives. browser.FormSession implements it.
type Session interface {
	// Open navigates to the form.
	Open(ctx context.Context, url string) error
	// WaitReady blocks until the questions have rendered.
	WaitReady(ctx context.Context) error
	DOM() (form.DOM, error)
	// Reset clears cookies and returns to a blank form.
	Reset(ctx context.Context) error
}

// Recorder persists run history. *store.HistoryStore implements it.
type Recorder interface {
	BeginRun(ctx context.Context, formURL string, passes int) (string, error)
	RecordPass(ctx context.Context, runID string, pass int, report form.PageReport) error
	FinishRun(ctx context.Context, runID, status string) error
}

// Config configures a Runner.
type Config struct {
	FormURL string
	Times   int
	Filler  form.FillerConfig
	// OnPass, if set, is called after every pass.
	OnPass func(PassResult)
}

// PassResult is the outcome of one pass.
type PassResult struct {
	Pass     int
	Ready    bool
	Report   form.PageReport
	Err      error // navigation or DOM failure that prevented filling
	Duration time.Duration
}

// Summary aggregates a whole run.
type Summary struct {
	RunID     string
	Status    string
	Planned   int
	Completed int
	Submitted int
	Answered  int
	Errors    int
	Passes    []PassResult
	Duration  time.Duration
}

// Runner executes passes strictly one after another on a single session.
type Runner struct {
	session  Session
	recorder Recorder
	cfg      Config
}

// NewRunner creates a Runner. recorder may be nil.
func NewRunner(session Session, recorder Recorder, cfg Config) *Runner {
	return &Runner{session: session, recorder: recorder, cfg: cfg}
}

// Run performs cfg.Times passes. It returns ctx.Err() alongside the partial
// summary when cancelled; per-pass failures are reported in the summary only.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	if r.cfg.Times < 1 {
		return nil, ErrNoPasses
	}
	if r.cfg.FormURL == "" {
		return nil, errors.New("form URL is required")
	}

	start := time.Now()
	summary := &Summary{Planned: r.cfg.Times, Status: store.StatusCompleted}
	summary.RunID = r.beginRun(ctx)

	logging.Run("Starting %d passes of %s", r.cfg.Times, r.cfg.FormURL)

	needOpen := true
	var runErr error
	for i := 1; i <= r.cfg.Times; i++ {
		select {
		case <-ctx.Done():
			logging.Run("Run cancelled before pass %d: %v", i, ctx.Err())
			runErr = ctx.Err()
		default:
		}
		if runErr != nil {
			break
		}

		result := r.pass(ctx, i, needOpen)
		summary.add(result)
		r.recordPass(ctx, summary.RunID, result)
		if r.cfg.OnPass != nil {
			r.cfg.OnPass(result)
		}

		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}

		needOpen = result.Err != nil
		if i < r.cfg.Times && !needOpen {
			if err := r.session.Reset(ctx); err != nil {
				logging.RunWarn("Reset after pass %d failed, reopening: %v", i, err)
				needOpen = true
			}
		}
	}

	switch {
	case runErr != nil:
		summary.Status = store.StatusCancelled
	case summary.Completed == 0:
		summary.Status = store.StatusFailed
	}
	summary.Duration = time.Since(start)
	r.finishRun(ctx, summary)

	logging.Run("Run finished: status=%s passes=%d/%d submitted=%d answered=%d errors=%d in %v",
		summary.Status, summary.Completed, summary.Planned, summary.Submitted, summary.Answered, summary.Errors, summary.Duration)
	return summary, runErr
}

// slowPass is the duration above which a pass is logged as slow.
const slowPass = 2 * time.Minute

func (r *Runner) pass(ctx context.Context, n int, open bool) PassResult {
	timer := logging.StartTimer(logging.CategoryRun, fmt.Sprintf("Pass %d", n))
	defer timer.StopWithThreshold(slowPass)
	start := time.Now()
	result := PassResult{Pass: n}

	logging.RunDebug("Pass %d starting", n)
	if open {
		if err := r.session.Open(ctx, r.cfg.FormURL); err != nil {
			logging.RunError("Pass %d: opening form failed: %v", n, err)
			result.Err = fmt.Errorf("open form: %w", err)
			result.Duration = time.Since(start)
			return result
		}
	}

	if err := r.session.WaitReady(ctx); err != nil {
		// Best effort: the page may still be usable.
		logging.RunWarn("Pass %d: form not ready, filling anyway: %v", n, err)
	} else {
		result.Ready = true
	}

	dom, err := r.session.DOM()
	if err != nil {
		result.Err = fmt.Errorf("page dom: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Report = form.NewFiller(dom, r.cfg.Filler).FillPage(ctx)
	result.Duration = time.Since(start)
	logging.Run("Pass %d: %d questions, %d answered, submitted=%v (%v)",
		n, len(result.Report.Questions), result.Report.Answered(), result.Report.Submitted, result.Duration)
	return result
}

func (s *Summary) add(p PassResult) {
	s.Passes = append(s.Passes, p)
	if p.Err != nil {
		s.Errors++
		return
	}
	s.Completed++
	s.Answered += p.Report.Answered()
	s.Errors += p.Report.ErrorCount()
	if p.Report.Submitted {
		s.Submitted++
	}
}

func (r *Runner) beginRun(ctx context.Context) string {
	if r.recorder == nil {
		return ""
	}
	id, err := r.recorder.BeginRun(ctx, r.cfg.FormURL, r.cfg.Times)
	if err != nil {
		logging.RunWarn("History disabled for this run: %v", err)
		return ""
	}
	return id
}

func (r *Runner) recordPass(ctx context.Context, runID string, p PassResult) {
	if r.recorder == nil || runID == "" {
		return
	}
	if err := r.recorder.RecordPass(context.WithoutCancel(ctx), runID, p.Pass, p.Report); err != nil {
		logging.RunWarn("Recording pass %d failed: %v", p.Pass, err)
	}
}

func (r *Runner) finishRun(ctx context.Context, s *Summary) {
	if r.recorder == nil || s.RunID == "" {
		return
	}
	if err := r.recorder.FinishRun(context.WithoutCancel(ctx), s.RunID, s.Status); err != nil {
		logging.RunWarn("Finishing run %s failed: %v", s.RunID, err)
	}
}
