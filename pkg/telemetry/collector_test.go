package telemetry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testInterval = 5 * time.Millisecond

func newTestCollector(t *testing.T, ch Channel) *Collector {
	t.Helper()
	return NewCollector(ch, Config{Interval: testInterval, Logger: zaptest.NewLogger(t)})
}

func seriesLen(c *Collector, m Metric) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.series[m])
}

func TestCollector_StopBeforeStartReturnsEmptyRecord(t *testing.T) {
	ch := newFakeChannel()
	c := newTestCollector(t, ch)

	rec := c.Stop(context.Background(), Login{})
	require.NotNil(t, rec)

	assert.False(t, rec.LoginSuccessful)
	assert.Nil(t, rec.StartedAt)
	assert.True(t, rec.NavigationTiming.Empty())
	assert.Zero(t, ch.metricCalls, "a never-started collector must not touch the channel")
	for _, m := range []Metric{
		MetricCPUTaskDuration, MetricHeapUsedSize, MetricScriptDuration, MetricLayoutDuration,
		MetricStyleRecalcDuration, MetricListenerCount, MetricDOMNodeCount,
	} {
		assert.NotNil(t, rec.Series.Get(m), m)
		assert.Empty(t, rec.Series.Get(m), m)
	}

	// Empty sequences serialize as arrays, not null.
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"cpuTaskDuration":[]`)
	assert.Contains(t, string(b), `"requests":[]`)
	assert.Contains(t, string(b), `"finalMetrics":{}`)
}

func TestCollector_StartStopCollectsAllSeries(t *testing.T) {
	ch := newFakeChannel()
	c := newTestCollector(t, ch)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		return seriesLen(c, MetricDOMNodeCount) >= 3
	}, 2*time.Second, testInterval)

	rec := c.Stop(context.Background(), Login{Successful: true, SubmitDuration: 1500 * time.Millisecond})

	assert.True(t, rec.LoginSuccessful)
	require.NotNil(t, rec.FormSubmissionMs)
	assert.Equal(t, 1500.0, *rec.FormSubmissionMs)
	require.NotNil(t, rec.StartedAt)
	require.NotNil(t, rec.StoppedAt)

	require.NotEmpty(t, rec.Series.CPUTaskDuration)
	assert.Equal(t, 0.25, rec.Series.CPUTaskDuration[0].Value)
	assert.Equal(t, float64(1<<20), rec.Series.HeapUsedSize[0].Value)
	assert.Equal(t, 0.1, rec.Series.ScriptDuration[0].Value)
	assert.Equal(t, 0.02, rec.Series.LayoutDuration[0].Value)
	assert.Equal(t, 0.01, rec.Series.StyleRecalcDuration[0].Value)
	assert.Equal(t, 12.0, rec.Series.ListenerCount[0].Value)
	assert.Equal(t, 87.0, rec.Series.DOMNodeCount[0].Value)
	assert.Equal(t, 120.0, rec.FinalMetrics["Nodes"])
	assert.Zero(t, rec.DroppedSamples)

	for i := 1; i < len(rec.Series.DOMNodeCount); i++ {
		assert.Greater(t, rec.Series.DOMNodeCount[i].Tick, rec.Series.DOMNodeCount[i-1].Tick)
	}
}

func TestCollector_FailedLoginOmitsFormSubmission(t *testing.T) {
	c := newTestCollector(t, newFakeChannel())
	require.NoError(t, c.Start(context.Background()))

	rec := c.Stop(context.Background(), Login{Successful: false, SubmitDuration: time.Second})
	assert.False(t, rec.LoginSuccessful)
	assert.Nil(t, rec.FormSubmissionMs)
}

func TestCollector_DroppedTickOnlyShrinksItsOwnSeries(t *testing.T) {
	ch := newFakeChannel()
	ch.failHeap = func(call int) bool { return call%2 == 0 }
	c := newTestCollector(t, ch)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		return seriesLen(c, MetricCPUTaskDuration) >= 6
	}, 2*time.Second, testInterval)
	rec := c.Stop(context.Background(), Login{})

	// Stop may land between two round trips of the last tick, so healthy
	// series can differ from each other by one.
	cpu := len(rec.Series.CPUTaskDuration)
	assert.Less(t, len(rec.Series.HeapUsedSize), cpu-1)
	for _, m := range []Metric{MetricScriptDuration, MetricLayoutDuration, MetricStyleRecalcDuration, MetricListenerCount, MetricDOMNodeCount} {
		assert.InDelta(t, cpu, len(rec.Series.Get(m)), 1, m)
	}
	assert.Positive(t, rec.DroppedSamples)

	// Surviving heap samples keep their original tick index.
	for _, s := range rec.Series.HeapUsedSize {
		assert.Equal(t, 0, s.Tick%2, "heap sample at odd tick %d", s.Tick)
	}
}

func TestCollector_FailedEvalIsSwallowed(t *testing.T) {
	ch := newFakeChannel()
	ch.failEval = func(js string, call int) bool { return js == domNodeCountJS && call <= 2 }
	c := newTestCollector(t, ch)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		return seriesLen(c, MetricDOMNodeCount) >= 2
	}, 2*time.Second, testInterval)
	rec := c.Stop(context.Background(), Login{})

	require.NotEmpty(t, rec.Series.DOMNodeCount)
	assert.GreaterOrEqual(t, rec.Series.DOMNodeCount[0].Tick, 2)
	assert.Equal(t, 0, rec.Series.ListenerCount[0].Tick)
}

func TestCollector_NoSamplesAfterStop(t *testing.T) {
	ch := newFakeChannel()
	c := newTestCollector(t, ch)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		return seriesLen(c, MetricHeapUsedSize) >= 1
	}, 2*time.Second, testInterval)

	rec := c.Stop(context.Background(), Login{})
	n := seriesLen(c, MetricHeapUsedSize)

	time.Sleep(10 * testInterval)
	assert.Equal(t, n, seriesLen(c, MetricHeapUsedSize))
	assert.Same(t, rec, c.Stop(context.Background(), Login{Successful: true}), "Stop is idempotent")
	assert.True(t, ch.wasUnsubscribed())
}

func TestCollector_InFlightTickResultDiscarded(t *testing.T) {
	ch := newFakeChannel()
	ch.listenerGate = make(chan struct{})
	ch.listenerBlocked = make(chan struct{}, 1)
	c := newTestCollector(t, ch)

	require.NoError(t, c.Start(context.Background()))

	select {
	case <-ch.listenerBlocked:
	case <-time.After(2 * time.Second):
		t.Fatal("tick never reached the listener evaluation")
	}

	rec := c.Stop(context.Background(), Login{})
	close(ch.listenerGate)

	time.Sleep(5 * testInterval)
	assert.Empty(t, rec.Series.ListenerCount)
	assert.Zero(t, seriesLen(c, MetricListenerCount))
}

func TestCollector_RoutesEvents(t *testing.T) {
	ch := newFakeChannel()
	c := newTestCollector(t, ch)
	require.NoError(t, c.Start(context.Background()))

	ch.emit(EventSample{Kind: EventRequestSent, RequestID: "1", URL: "http://app/login", Method: "GET"})
	ch.emit(EventSample{Kind: EventResponseReceived, RequestID: "1", Status: 200})
	ch.emit(EventSample{Kind: EventLoadingFinished, RequestID: "1", Timestamp: 10.0, EncodedBytes: 1000})
	ch.emit(EventSample{Kind: EventLoadingFinished, RequestID: "2", Timestamp: 10.5, EncodedBytes: 1000})
	ch.emit(EventSample{Kind: EventDOMMutation, Detail: "childNodeInserted", NodeID: 7})
	ch.emit(EventSample{Kind: EventDOMNodeCount, NodeID: 3, ChildNodeCount: 9})

	rec := c.Stop(context.Background(), Login{})
	ch.emit(EventSample{Kind: EventRequestSent, RequestID: "late"})

	require.Len(t, rec.Network.Requests, 1)
	assert.Equal(t, "http://app/login", rec.Network.Requests[0].URL)
	require.Len(t, rec.Network.Responses, 1)
	assert.Equal(t, 200, rec.Network.Responses[0].Status)
	assert.Len(t, rec.Network.LoadingFinished, 2)
	assert.Len(t, rec.DOMEvents, 2)

	require.NotNil(t, rec.Network.PeakThroughputBps)
	assert.Equal(t, int64(32000), *rec.Network.PeakThroughputBps)

	c.mu.Lock()
	assert.Len(t, c.requests, 1, "events after Stop are ignored")
	c.mu.Unlock()
}

func TestCollector_StartTwice(t *testing.T) {
	c := newTestCollector(t, newFakeChannel())
	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
	c.Stop(context.Background(), Login{})
	assert.ErrorIs(t, c.Start(context.Background()), ErrStopped)
}

func TestCollector_StartEnableFailure(t *testing.T) {
	ch := newFakeChannel()
	ch.enableErr = errTransient
	c := newTestCollector(t, ch)

	err := c.Start(context.Background())
	var cmdErr *ChannelCommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "enable", cmdErr.Command)
	assert.ErrorIs(t, err, errTransient)
}

func TestCollector_FinalSnapshotFailureCountsAsDropped(t *testing.T) {
	ch := newFakeChannel()
	ch.failMetrics = func(int) bool { return true }
	c := NewCollector(ch, Config{Interval: time.Hour, Logger: zaptest.NewLogger(t)})

	require.NoError(t, c.Start(context.Background()))
	rec := c.Stop(context.Background(), Login{})

	assert.Equal(t, 1, rec.DroppedSamples)
	assert.Empty(t, rec.FinalMetrics)
}

func TestCollector_CaptureNavigationTiming(t *testing.T) {
	ch := newFakeChannel()
	ch.timing = `{"navigationStart":1000,"domainLookupStart":1005,"domainLookupEnd":1010,
		"connectStart":1010,"connectEnd":1030,"requestStart":1031,"responseStart":1080,
		"responseEnd":1100,"domInteractive":1300,"domContentLoadedEventEnd":1350,
		"domComplete":1500,"loadEventEnd":1520}`
	c := newTestCollector(t, ch)
	require.NoError(t, c.Start(context.Background()))

	nt, err := c.CaptureNavigationTiming(context.Background())
	require.NoError(t, err)
	require.NotNil(t, nt.TimeToFirstByte)
	assert.Equal(t, 49.0, *nt.TimeToFirstByte)

	rec := c.Stop(context.Background(), Login{Successful: true})
	require.NotNil(t, rec.NavigationTiming.PageLoad)
	assert.Equal(t, 520.0, *rec.NavigationTiming.PageLoad)
}

func TestCollector_CaptureNavigationTimingReadsPlainObject(t *testing.T) {
	ch := newFakeChannel()
	ch.timing = `{"navigationStart":1000,"domComplete":1500}`
	c := newTestCollector(t, ch)

	_, err := c.CaptureNavigationTiming(context.Background())
	require.NoError(t, err)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	assert.Equal(t, 1, ch.evalCalls[`() => window.performance.timing.toJSON()`],
		"PerformanceTiming getters are lost unless the page serializes them")
}

func TestCollector_CaptureNavigationTimingEmptyObject(t *testing.T) {
	ch := newFakeChannel()
	ch.timing = `{}`
	c := newTestCollector(t, ch)

	_, err := c.CaptureNavigationTiming(context.Background())
	assert.ErrorIs(t, err, errNoNavigationStart)
}

func TestCollector_CaptureNavigationTimingFailure(t *testing.T) {
	c := newTestCollector(t, newFakeChannel())

	_, err := c.CaptureNavigationTiming(context.Background())
	var cmdErr *ChannelCommandError
	assert.ErrorAs(t, err, &cmdErr)
}
