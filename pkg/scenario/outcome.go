package scenario

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/thesyncim/loginbench/pkg/results"
)

// ErrNavigationTimeout marks a page load or post-login wait that ran out of
// budget. Drivers wrap their timeout errors with it.
var ErrNavigationTimeout = errors.New("navigation timeout")

// IterationError aborts one iteration. The page is still closed and the
// matrix continues.
type IterationError struct {
	Application string
	Condition   string
	Stage       Stage
	Err         error
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("%s/%s: stage %s: %v", e.Application, e.Condition, e.Stage, e.Err)
}

func (e *IterationError) Unwrap() error { return e.Err }

// Status is the verdict of one iteration.
type Status string

const (
	// StatusOK means the metrics artifact was written.
	StatusOK Status = "ok"
	// StatusSkipped means the iteration failed and produced no artifacts.
	StatusSkipped Status = "skipped"
)

// Outcome is the result of one iteration: either written artifacts or the
// reason they were skipped.
type Outcome struct {
	Application string
	Condition   string

	// Stage is the last stage reached. FailedStage is the stage that was
	// being attempted when Err occurred.
	Stage       Stage
	FailedStage Stage
	Status      Status
	Err         error

	LoginSuccessful    bool
	NavigationTimedOut bool

	MetricsPath string
	AuditPath   string
	// AuditErr is set when the audit failed; the metrics artifact is still
	// written.
	AuditErr error

	StartedAt time.Time
	Duration  time.Duration
}

// OK reports whether the metrics artifact was written.
func (o *Outcome) OK() bool { return o.Status == StatusOK }

// Entry converts o into a ledger entry for runID.
func (o *Outcome) Entry(runID string) results.Entry {
	e := results.Entry{
		RunID:           runID,
		Application:     o.Application,
		Condition:       o.Condition,
		Stage:           o.Stage.String(),
		Status:          string(o.Status),
		LoginSuccessful: o.LoginSuccessful,
		MetricsPath:     o.MetricsPath,
		AuditPath:       o.AuditPath,
		StartedAt:       o.StartedAt,
		Duration:        o.Duration,
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	if o.AuditErr != nil {
		e.AuditError = o.AuditErr.Error()
	}
	return e
}

// Report collects the outcomes of one matrix run in execution order.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []Outcome
}

// MetricsWritten counts iterations that wrote a metrics artifact.
func (r *Report) MetricsWritten() int {
	n := 0
	for i := range r.Outcomes {
		if r.Outcomes[i].MetricsPath != "" {
			n++
		}
	}
	return n
}

// AuditsWritten counts iterations that wrote an audit artifact.
func (r *Report) AuditsWritten() int {
	n := 0
	for i := range r.Outcomes {
		if r.Outcomes[i].AuditPath != "" {
			n++
		}
	}
	return n
}

// Skipped returns the outcomes that produced no artifacts.
func (r *Report) Skipped() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Err combines the errors of skipped iterations, or nil when none failed.
func (r *Report) Err() error {
	var err error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			err = multierr.Append(err, o.Err)
		}
	}
	return err
}
