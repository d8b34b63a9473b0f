package scenario

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/thesyncim/loginbench/internal/clock"
	"github.com/thesyncim/loginbench/pkg/audit"
	"github.com/thesyncim/loginbench/pkg/condition"
	"github.com/thesyncim/loginbench/pkg/results"
	"github.com/thesyncim/loginbench/pkg/telemetry"
)

const tracerName = "github.com/thesyncim/loginbench/pkg/scenario"

// Page is one browser tab together with its instrumentation channel.
type Page interface {
	telemetry.Channel
	condition.Throttler

	// Goto navigates and waits for the load signal within timeout.
	Goto(ctx context.Context, url string, timeout time.Duration) error
	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	// WaitVisible waits up to timeout for selector to match a visible
	// element.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	URL(ctx context.Context) (string, error)
	Close() error
}

// Browser opens pages on a running browser and exposes its remote
// debugging port for the audit engine.
type Browser interface {
	OpenPage(ctx context.Context) (Page, error)
	DebugPort() (int, error)
}

// Auditor produces an audit report for a live page.
type Auditor interface {
	Run(pageURL string, port int, c condition.Condition) (*audit.Report, error)
}

// Recorder persists outcomes as they complete.
type Recorder interface {
	Record(ctx context.Context, e results.Entry) error
}

// App is one front-end variant under test.
type App struct {
	Name    string
	BaseURL string
}

// Credentials are typed into the login form.
type Credentials struct {
	Username string
	Password string
}

// Selectors locate the login form and the post-login marker.
type Selectors struct {
	Username string
	Password string
	Submit   string
	// Marker is an element present only once the user is logged in.
	Marker string
}

// Config configures the login scenario.
type Config struct {
	// Name is the scenario kind; artifacts live under a directory of this
	// name. Default: "login".
	Name        string
	LoginPath   string
	Credentials Credentials
	Selectors   Selectors

	NavigationTimeout          time.Duration
	ThrottledNavigationTimeout time.Duration
	LoginTimeout               time.Duration

	Collector telemetry.Config
}

// DefaultConfig returns the login flow settings: form selectors, a "#home"
// marker and the 120s/300s/60s timeout budgets.
func DefaultConfig() Config {
	return Config{
		Name:      "login",
		LoginPath: "login",
		Selectors: Selectors{
			Username: "#email-input",
			Password: "#password-input",
			Submit:   "#submit-btn",
			Marker:   "#home",
		},
		NavigationTimeout:          120 * time.Second,
		ThrottledNavigationTimeout: 300 * time.Second,
		LoginTimeout:               60 * time.Second,
		Collector:                  telemetry.Config{Interval: telemetry.DefaultInterval},
	}
}

// navigationBudget returns the page-load timeout for c.
func (c Config) navigationBudget(cond condition.Condition) time.Duration {
	if cond.Throttled() {
		return c.ThrottledNavigationTimeout
	}
	return c.NavigationTimeout
}

// Executor runs scenario iterations one at a time.
type Executor struct {
	browser  Browser
	writer   *results.Writer
	cfg      Config
	auditor  Auditor
	recorder Recorder
	logger   *zap.Logger
	clock    clock.Clock
	tracer   trace.Tracer
	runID    string
}

// Option configures an Executor.
type Option func(*Executor)

// WithAuditor enables the audit stage.
func WithAuditor(a Auditor) Option {
	return func(e *Executor) { e.auditor = a }
}

// WithRecorder passes every outcome to r.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// WithLogger sets the logger. Default: no-op.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithClock sets the time source. Default: clock.Monotonic.
func WithClock(c clock.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

// WithTracer sets the tracer. Default: the global provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// WithRunID tags recorded outcomes with id. Without it every RunMatrix call
// generates its own id.
func WithRunID(id string) Option {
	return func(e *Executor) { e.runID = id }
}

// NewExecutor creates an executor that opens pages on b and writes through w.
func NewExecutor(b Browser, w *results.Writer, cfg Config, opts ...Option) *Executor {
	e := &Executor{
		browser: b,
		writer:  w,
		cfg:     cfg,
		logger:  zap.NewNop(),
		clock:   clock.Monotonic{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.cfg.Name == "" {
		e.cfg.Name = "login"
	}
	return e
}

// iteration carries the state of one RunOne call between stages.
type iteration struct {
	runID     string
	app       App
	cond      condition.Condition
	out       *Outcome
	attempt   Stage
	logger    *zap.Logger
	page      Page
	collector *telemetry.Collector
	record    *telemetry.MetricsRecord
	report    *audit.Report
	login     telemetry.Login
}

// RunOne runs a single iteration. It never panics and never leaks the page:
// every failure is caught here and returned as a skipped Outcome.
func (e *Executor) RunOne(ctx context.Context, app App, cond condition.Condition) Outcome {
	return e.runOne(ctx, e.runID, app, cond)
}

func (e *Executor) runOne(ctx context.Context, runID string, app App, cond condition.Condition) (out Outcome) {
	out = Outcome{
		Application: app.Name,
		Condition:   cond.Label(),
		Stage:       StageIdle,
		StartedAt:   e.clock.Now(),
	}
	it := &iteration{
		runID:  runID,
		app:    app,
		cond:   cond,
		out:    &out,
		logger: e.logger.With(zap.String("app", app.Name), zap.String("condition", cond.Label())),
	}

	ctx, span := e.tracer.Start(ctx, "scenario.iteration", trace.WithAttributes(
		attribute.String("app", app.Name),
		attribute.String("condition", cond.Label()),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			e.fail(it, fmt.Errorf("panic: %v", r))
			e.closePage(it)
		}
		out.Duration = e.clock.Now().Sub(out.StartedAt)
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Error())
		}
		e.finish(ctx, it)
	}()

	if err := e.run(ctx, it); err != nil {
		e.fail(it, err)
	}
	return out
}

// run drives the stages. The page is closed on every path out of run once
// it was opened.
func (e *Executor) run(ctx context.Context, it *iteration) error {
	it.attempt = StageSessionOpened
	loginURL, err := url.JoinPath(it.app.BaseURL, e.cfg.LoginPath)
	if err != nil {
		return fmt.Errorf("login url: %w", err)
	}

	page, err := e.browser.OpenPage(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	it.page = page
	it.out.Stage = StageSessionOpened
	defer e.closePage(it)

	if err := e.stage(ctx, it, StageConditionApplied, func(ctx context.Context) error {
		return condition.Apply(ctx, page, it.cond)
	}); err != nil {
		return err
	}

	collectorCfg := e.cfg.Collector
	collectorCfg.Clock = e.clock
	collectorCfg.Logger = it.logger
	it.collector = telemetry.NewCollector(page, collectorCfg)
	defer it.collector.Stop(context.WithoutCancel(ctx), it.login)

	if err := e.stage(ctx, it, StageNavigated, func(ctx context.Context) error {
		if err := it.collector.Start(ctx); err != nil {
			return fmt.Errorf("start collector: %w", err)
		}
		err := page.Goto(ctx, loginURL, e.cfg.navigationBudget(it.cond))
		if isTimeout(err) {
			it.out.NavigationTimedOut = true
			it.logger.Warn("navigation timed out, recording failed login",
				zap.String("stage", StageNavigated.String()), zap.Error(err))
			return nil
		}
		return err
	}); err != nil {
		return err
	}

	if err := e.stage(ctx, it, StageAuthenticated, func(ctx context.Context) error {
		if it.out.NavigationTimedOut {
			return nil
		}
		return e.authenticate(ctx, it)
	}); err != nil {
		return err
	}

	if err := e.stage(ctx, it, StageCollectorStopped, func(ctx context.Context) error {
		if !it.out.NavigationTimedOut {
			if _, err := it.collector.CaptureNavigationTiming(ctx); err != nil {
				it.logger.Warn("navigation timing unavailable",
					zap.String("stage", StageCollectorStopped.String()), zap.Error(err))
			}
		}
		it.record = it.collector.Stop(ctx, it.login)
		it.record.Application = it.app.Name
		it.record.Condition = it.cond.Label()
		it.out.LoginSuccessful = it.record.LoginSuccessful
		return nil
	}); err != nil {
		return err
	}

	if err := e.stage(ctx, it, StageAuditComplete, func(ctx context.Context) error {
		return e.audit(ctx, it)
	}); err != nil {
		return err
	}

	return e.stage(ctx, it, StageWritten, func(ctx context.Context) error {
		return e.write(it)
	})
}

// authenticate submits the credentials and waits for the post-login
// marker. A marker timeout is a failed login, not a failed iteration.
func (e *Executor) authenticate(ctx context.Context, it *iteration) error {
	sel := e.cfg.Selectors
	if err := it.page.Type(ctx, sel.Username, e.cfg.Credentials.Username); err != nil {
		return fmt.Errorf("type %s: %w", sel.Username, err)
	}
	if err := it.page.Type(ctx, sel.Password, e.cfg.Credentials.Password); err != nil {
		return fmt.Errorf("type %s: %w", sel.Password, err)
	}

	submitted := e.clock.Now()
	if err := it.page.Click(ctx, sel.Submit); err != nil {
		return fmt.Errorf("click %s: %w", sel.Submit, err)
	}

	err := it.page.WaitVisible(ctx, sel.Marker, e.cfg.LoginTimeout)
	switch {
	case err == nil:
		it.login = telemetry.Login{Successful: true, SubmitDuration: e.clock.Now().Sub(submitted)}
		it.logger.Info("login successful", zap.Duration("submit", it.login.SubmitDuration))
		return nil
	case isTimeout(err):
		it.logger.Warn("post-login marker never appeared, recording failed login",
			zap.String("stage", StageAuthenticated.String()),
			zap.String("marker", sel.Marker), zap.Error(err))
		return nil
	default:
		return fmt.Errorf("wait for %s: %w", sel.Marker, err)
	}
}

// audit runs the audit engine. Engine failures are recorded on the outcome
// and do not fail the iteration.
func (e *Executor) audit(ctx context.Context, it *iteration) error {
	if e.auditor == nil {
		return nil
	}

	pageURL, err := it.page.URL(ctx)
	if err != nil {
		return fmt.Errorf("page url: %w", err)
	}
	port, err := e.browser.DebugPort()
	if err != nil {
		return fmt.Errorf("debug port: %w", err)
	}

	report, err := e.auditor.Run(pageURL, port, it.cond)
	var engineErr *audit.EngineError
	switch {
	case err == nil:
		report.Application = it.app.Name
		report.Condition = it.cond.Label()
		it.report = report
		return nil
	case errors.As(err, &engineErr):
		it.out.AuditErr = err
		it.logger.Warn("audit skipped",
			zap.String("stage", StageAuditComplete.String()), zap.Error(err))
		return nil
	default:
		return err
	}
}

func (e *Executor) write(it *iteration) error {
	path, err := e.writer.Write(it.app.Name, it.cond.Label(), results.KindMetrics, it.record)
	if err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	it.out.MetricsPath = path

	if it.report != nil {
		path, err := e.writer.Write(it.app.Name, it.cond.Label(), results.KindAudit, it.report)
		if err != nil {
			// Same treatment as a failed audit: the metrics artifact stands.
			it.out.AuditErr = fmt.Errorf("write audit: %w", err)
			it.logger.Warn("audit artifact not written",
				zap.String("stage", StageWritten.String()), zap.Error(err))
			return nil
		}
		it.out.AuditPath = path
	}
	return nil
}

// stage runs fn inside a span and advances the outcome to s on success.
func (e *Executor) stage(ctx context.Context, it *iteration, s Stage, fn func(context.Context) error) error {
	it.attempt = s
	ctx, span := e.tracer.Start(ctx, "scenario."+s.String())
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	it.out.Stage = s
	return nil
}

func (e *Executor) closePage(it *iteration) {
	page := it.page
	it.page = nil
	if page == nil {
		return
	}
	if err := page.Close(); err != nil {
		it.logger.Warn("page close failed", zap.Error(err))
	}
	it.out.Stage = StageClosed
}

func (e *Executor) fail(it *iteration, err error) {
	attempted := it.attempt
	it.out.Status = StatusSkipped
	it.out.FailedStage = attempted
	it.out.Err = &IterationError{
		Application: it.app.Name,
		Condition:   it.cond.Label(),
		Stage:       attempted,
		Err:         err,
	}
	// A skipped iteration leaves no artifacts behind.
	for kind, path := range map[results.Kind]string{
		results.KindMetrics: it.out.MetricsPath,
		results.KindAudit:   it.out.AuditPath,
	} {
		if path == "" {
			continue
		}
		if rerr := e.writer.Remove(it.app.Name, it.cond.Label(), kind); rerr != nil {
			it.logger.Warn("removing artifact of skipped iteration failed",
				zap.String("path", path), zap.Error(rerr))
		}
	}
	it.out.MetricsPath = ""
	it.out.AuditPath = ""
}

// finish logs and records a completed iteration.
func (e *Executor) finish(ctx context.Context, it *iteration) {
	out := it.out
	if out.Err == nil {
		out.Status = StatusOK
		it.logger.Info("iteration complete",
			zap.Bool("login_successful", out.LoginSuccessful),
			zap.String("metrics", out.MetricsPath),
			zap.String("audit", out.AuditPath),
			zap.Duration("duration", out.Duration))
	} else {
		it.logger.Error("iteration skipped",
			zap.String("stage", out.FailedStage.String()),
			zap.Error(out.Err))
	}

	if e.recorder != nil {
		if err := e.recorder.Record(context.WithoutCancel(ctx), out.Entry(it.runID)); err != nil {
			it.logger.Warn("recording outcome failed", zap.Error(err))
		}
	}
}

func isTimeout(err error) bool {
	return err != nil && (errors.Is(err, ErrNavigationTimeout) || errors.Is(err, context.DeadlineExceeded))
}
