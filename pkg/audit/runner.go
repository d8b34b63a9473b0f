package audit

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thesyncim/loginbench/pkg/condition"
)

// EngineError reports an audit that could not produce a usable report:
// the engine failed, or its output lacked a required section. It never
// aborts a scenario; the caller skips the audit artifact.
type EngineError struct {
	URL string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("audit %s: %v", e.URL, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Runner invokes an Engine and normalizes its report.
type Runner struct {
	engine Engine
	logger *zap.Logger
}

// NewRunner creates a runner over engine. A nil logger disables logging.
func NewRunner(engine Engine, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{engine: engine, logger: logger}
}

// Run audits pageURL through the browser listening on port, with options
// mirroring c.
func (r *Runner) Run(pageURL string, port int, c condition.Condition) (*Report, error) {
	opts := OptionsFor(port, c)

	start := time.Now()
	raw, err := r.engine.Run(pageURL, opts)
	if err != nil {
		return nil, &EngineError{URL: pageURL, Err: err}
	}

	report, err := Extract(raw)
	if err != nil {
		return nil, &EngineError{URL: pageURL, Err: err}
	}

	r.logger.Debug("audit complete",
		zap.String("url", pageURL),
		zap.String("condition", c.Label()),
		zap.Int("metrics", len(report.Metrics)),
		zap.Int("resources", len(report.ResourceSummary)),
		zap.Int("raw_bytes", len(raw)),
		zap.Duration("duration", time.Since(start)))
	return report, nil
}
