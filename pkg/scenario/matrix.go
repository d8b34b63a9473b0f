package scenario

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thesyncim/loginbench/pkg/condition"
)

// RunMatrix runs every application under every condition, applications in
// the outer loop, strictly one iteration at a time. A failed iteration is
// recorded and the matrix continues; cancelling ctx stops it before the
// next iteration starts.
func (e *Executor) RunMatrix(ctx context.Context, apps []App, conds []condition.Condition) *Report {
	runID := e.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	report := &Report{
		RunID:     runID,
		StartedAt: e.clock.Now(),
		Outcomes:  make([]Outcome, 0, len(apps)*len(conds)),
	}
	logger := e.logger.With(zap.String("run_id", runID))
	logger.Info("matrix started",
		zap.Int("applications", len(apps)),
		zap.Int("conditions", len(conds)))

matrix:
	for _, app := range apps {
		for _, cond := range conds {
			if err := ctx.Err(); err != nil {
				logger.Warn("matrix interrupted", zap.Error(err))
				break matrix
			}
			report.Outcomes = append(report.Outcomes, e.runOne(ctx, runID, app, cond))
		}
	}

	report.FinishedAt = e.clock.Now()
	logger.Info("matrix finished",
		zap.Int("iterations", len(report.Outcomes)),
		zap.Int("metrics_written", report.MetricsWritten()),
		zap.Int("audits_written", report.AuditsWritten()),
		zap.Int("skipped", len(report.Skipped())),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report
}
