package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thesyncim/loginbench/internal/clock"
)

// DefaultInterval is the sampling loop period.
const DefaultInterval = 100 * time.Millisecond

const (
	listenerCountJS = `() => Object.keys(window).filter(k => k.startsWith('on')).length`
	domNodeCountJS  = `() => document.getElementsByTagName('*').length`
)

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("collector already started")
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("collector stopped")
)

// Config configures a Collector.
type Config struct {
	// Interval is the sampling loop period. Default: DefaultInterval.
	Interval time.Duration

	// ThroughputWindow is the window for the peak transfer rate.
	// Default: DefaultThroughputWindow.
	ThroughputWindow time.Duration

	// Clock stamps samples. Default: clock.Monotonic.
	Clock clock.Clock

	// Logger receives dropped-sample diagnostics. Default: no-op.
	Logger *zap.Logger
}

// Collector gathers telemetry for one page between Start and Stop.
// A Collector is single-use.
type Collector struct {
	ch     Channel
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger

	mu          sync.Mutex
	started     bool
	stopped     bool
	startedAt   time.Time
	series      map[Metric][]PollSample
	requests    []EventSample
	responses   []EventSample
	finished    []EventSample
	domEvents   []EventSample
	nav         NavigationTiming
	dropped     int
	cancelLoop  context.CancelFunc
	unsubscribe func()
	record      *MetricsRecord
}

// NewCollector creates a collector over ch. Nothing is sent on the channel
// until Start.
func NewCollector(ch Channel, cfg Config) *Collector {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ThroughputWindow <= 0 {
		cfg.ThroughputWindow = DefaultThroughputWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		ch:     ch,
		cfg:    cfg,
		clock:  clock.OrDefault(cfg.Clock),
		logger: logger,
		series: make(map[Metric][]PollSample),
	}
}

// Start enables the protocol domains, subscribes to network and DOM events
// and launches the sampling loop. Round trips made by loop ticks use ctx, so
// cancelling ctx also ends the loop.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.stopped:
		c.mu.Unlock()
		return ErrStopped
	case c.started:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.startedAt = c.clock.Now()
	c.mu.Unlock()

	if err := c.ch.EnableDomains(ctx); err != nil {
		return &ChannelCommandError{Command: "enable", Err: err}
	}

	unsubscribe, err := c.ch.Subscribe(ctx, c.onEvent)
	if err != nil {
		return &ChannelCommandError{Command: "subscribe", Err: err}
	}

	loopCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.cancelLoop = cancel
	c.mu.Unlock()

	go c.loop(loopCtx, ctx)
	return nil
}

// loop fires a tick every interval until loopCtx is done. Ticks run their
// round trips on pollCtx, which Stop does not cancel: an in-flight tick
// finishes, but push discards what it produces after Stop.
func (c *Collector) loop(loopCtx, pollCtx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for tick := 0; ; tick++ {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
		}
		if loopCtx.Err() != nil {
			return
		}
		c.poll(pollCtx, tick)
	}
}

// poll performs one tick. Each round trip is independent; a failure drops
// only the series it would have fed.
func (c *Collector) poll(ctx context.Context, tick int) {
	offset := c.offset()

	if metrics, err := c.ch.PerformanceMetrics(ctx); err != nil {
		c.drop(tick, "Performance.getMetrics", err)
	} else {
		for name, metric := range perfMetricNames {
			if v, ok := metrics[name]; ok {
				c.push(metric, PollSample{Tick: tick, OffsetMs: offset, Value: v})
			}
		}
	}

	if heap, err := c.ch.HeapUsage(ctx); err != nil {
		c.drop(tick, "Runtime.getHeapUsage", err)
	} else {
		c.push(MetricHeapUsedSize, PollSample{Tick: tick, OffsetMs: offset, Value: heap.UsedSize})
	}

	c.pollEval(ctx, tick, offset, MetricListenerCount, listenerCountJS)
	c.pollEval(ctx, tick, offset, MetricDOMNodeCount, domNodeCountJS)
}

func (c *Collector) pollEval(ctx context.Context, tick int, offset float64, m Metric, js string) {
	raw, err := c.ch.EvalJSON(ctx, js)
	if err != nil {
		c.drop(tick, "Runtime.evaluate("+string(m)+")", err)
		return
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		c.drop(tick, "Runtime.evaluate("+string(m)+")", err)
		return
	}
	c.push(m, PollSample{Tick: tick, OffsetMs: offset, Value: v})
}

func (c *Collector) push(m Metric, s PollSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.series[m] = append(c.series[m], s)
}

func (c *Collector) drop(tick int, command string, err error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.dropped++
	c.mu.Unlock()

	c.logger.Debug("sample dropped",
		zap.Int("tick", tick),
		zap.Error(&ChannelCommandError{Command: command, Err: err}))
}

func (c *Collector) onEvent(e EventSample) {
	e.OffsetMs = c.offset()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	switch e.Kind {
	case EventRequestSent:
		c.requests = append(c.requests, e)
	case EventResponseReceived:
		c.responses = append(c.responses, e)
	case EventLoadingFinished:
		c.finished = append(c.finished, e)
	case EventDOMMutation, EventDOMNodeCount:
		c.domEvents = append(c.domEvents, e)
	}
}

func (c *Collector) offset() float64 {
	c.mu.Lock()
	start := c.startedAt
	c.mu.Unlock()
	return float64(c.clock.Now().Sub(start)) / float64(time.Millisecond)
}

// Stop ends collection and assembles the record. After Stop returns no
// further tick or event is accepted. Stop never fails: a failed final
// metrics snapshot only counts as a dropped sample. Calling Stop on a
// collector that was never started yields an empty record. Repeated calls
// return the first record.
func (c *Collector) Stop(ctx context.Context, login Login) *MetricsRecord {
	c.mu.Lock()
	if c.record != nil {
		rec := c.record
		c.mu.Unlock()
		return rec
	}
	c.stopped = true
	started := c.started
	cancel, unsubscribe := c.cancelLoop, c.unsubscribe
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}

	final := map[string]float64{}
	dropped := 0
	if started {
		if m, err := c.ch.PerformanceMetrics(ctx); err != nil {
			dropped++
			c.logger.Debug("final metrics snapshot failed",
				zap.Error(&ChannelCommandError{Command: "Performance.getMetrics", Err: err}))
		} else {
			final = m
		}
	}

	stoppedAt := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	rec := &MetricsRecord{
		LoginSuccessful:  login.Successful,
		NavigationTiming: c.nav,
		Series:           newSeries(c.series),
		Network: NetworkActivity{
			Requests:        append([]EventSample{}, c.requests...),
			Responses:       append([]EventSample{}, c.responses...),
			LoadingFinished: append([]EventSample{}, c.finished...),
		},
		DOMEvents:      append([]EventSample{}, c.domEvents...),
		FinalMetrics:   final,
		DroppedSamples: c.dropped + dropped,
	}
	if started {
		startedAt := c.startedAt
		rec.StartedAt = &startedAt
		rec.StoppedAt = &stoppedAt
	}
	if login.Successful && login.SubmitDuration > 0 {
		ms := float64(login.SubmitDuration) / float64(time.Millisecond)
		rec.FormSubmissionMs = &ms
	}
	if bps, ok := PeakThroughput(c.finished, c.cfg.ThroughputWindow); ok {
		rec.Network.PeakThroughputBps = &bps
	}

	c.record = rec
	return rec
}
