package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/thesyncim/loginbench/internal/config"
	"github.com/thesyncim/loginbench/internal/tracing"
	"github.com/thesyncim/loginbench/pkg/audit"
	"github.com/thesyncim/loginbench/pkg/browser"
	"github.com/thesyncim/loginbench/pkg/results"
	"github.com/thesyncim/loginbench/pkg/scenario"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the login scenario for every application and condition",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "app", Usage: "run a single application (vue, angular, react)"},
			&cli.StringSliceFlag{Name: "condition", Usage: "condition labels to run, e.g. fast3g or slow3g+slow-cpu"},
			&cli.BoolFlag{Name: "no-audit", Usage: "skip the Lighthouse audit"},
			&cli.StringFlag{Name: "results", Usage: "results directory"},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Trace.File != "" {
		shutdown, terr := initTracing(cfg.Trace.File, logger)
		if terr != nil {
			return terr
		}
		defer func() {
			err = multierr.Append(err, shutdown(context.Background()))
		}()
	}

	conds, err := cfg.MatrixConditions()
	if err != nil {
		return err
	}
	apps := cfg.Applications()

	runID := uuid.NewString()
	opts := []scenario.Option{
		scenario.WithLogger(logger),
		scenario.WithRunID(runID),
	}

	if path := cfg.Results.LedgerPath(); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("ledger dir: %w", err)
		}
		ledger, lerr := results.OpenLedger(path)
		if lerr != nil {
			return lerr
		}
		defer func() {
			err = multierr.Append(err, ledger.Close())
		}()
		opts = append(opts, scenario.WithRecorder(ledger))
	}

	if cfg.Audit.Enabled {
		runner := audit.NewRunner(audit.Lighthouse{Binary: cfg.Audit.Binary}, logger.Named("audit"))
		opts = append(opts, scenario.WithAuditor(runner))
	}

	browserCfg := cfg.BrowserConfig()
	browserCfg.Logger = logger.Named("browser")
	b, err := browser.Launch(browserCfg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, b.Close())
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	writer := results.NewWriter(cfg.Results.Dir, cfg.Scenario.Name)
	executor := scenario.NewExecutor(b, writer, cfg.ScenarioConfig(), opts...)
	report := executor.RunMatrix(ctx, apps, conds)

	for _, o := range report.Skipped() {
		logger.Warn("skipped",
			zap.String("app", o.Application),
			zap.String("condition", o.Condition),
			zap.String("stage", o.FailedStage.String()),
			zap.Error(o.Err))
	}
	fmt.Fprintf(stdout(cmd), "run %s: %d iterations, %d metrics files, %d audit files, %d skipped (%s)\n",
		report.RunID, len(report.Outcomes), report.MetricsWritten(), report.AuditsWritten(),
		len(report.Skipped()), writer.Dir())

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}
	if n := len(report.Skipped()); n > 0 {
		return fmt.Errorf("%d of %d iterations skipped: %w", n, len(report.Outcomes), report.Err())
	}
	return nil
}

// initTracing writes spans to path until the returned shutdown is called.
func initTracing(path string, logger *zap.Logger) (func(context.Context) error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("trace file: %w", err)
	}
	shutdown, err := tracing.Init("loginbench", f, logger)
	if err != nil {
		f.Close()
		return nil, err
	}
	return func(ctx context.Context) error {
		return multierr.Append(shutdown(ctx), f.Close())
	}, nil
}

func applyRunFlags(cmd *cli.Command, cfg *config.Config) {
	if v := cmd.String("app"); v != "" {
		cfg.AppType = v
	}
	if v := cmd.StringSlice("condition"); len(v) > 0 {
		cfg.Conditions = v
	}
	if cmd.Bool("no-audit") {
		cfg.Audit.Enabled = false
	}
	if v := cmd.String("results"); v != "" {
		cfg.Results.Dir = v
	}
}
