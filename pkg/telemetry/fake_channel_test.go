package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var errTransient = errors.New("execution context was destroyed")

// fakeChannel is an in-memory Channel. Failure hooks receive the 1-based
// call number of the command so tests can drop specific ticks.
type fakeChannel struct {
	mu sync.Mutex

	metrics   map[string]float64
	heapUsed  float64
	listeners float64
	domNodes  float64
	timing    string

	failMetrics func(call int) bool
	failHeap    func(call int) bool
	failEval    func(js string, call int) bool
	enableErr   error

	// listenerGate, when set, blocks listener-count evaluations until
	// closed; listenerBlocked is signalled once per blocked call.
	listenerGate    chan struct{}
	listenerBlocked chan struct{}

	metricCalls  int
	heapCalls    int
	evalCalls    map[string]int
	sink         func(EventSample)
	unsubscribed bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		metrics: map[string]float64{
			"TaskDuration":        0.25,
			"ScriptDuration":      0.1,
			"LayoutDuration":      0.02,
			"RecalcStyleDuration": 0.01,
			"JSHeapUsedSize":      1 << 20,
			"Nodes":               120,
		},
		heapUsed:  1 << 20,
		listeners: 12,
		domNodes:  87,
		evalCalls: map[string]int{},
	}
}

func (f *fakeChannel) EnableDomains(context.Context) error { return f.enableErr }

func (f *fakeChannel) PerformanceMetrics(context.Context) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metricCalls++
	if f.failMetrics != nil && f.failMetrics(f.metricCalls) {
		return nil, errTransient
	}
	out := make(map[string]float64, len(f.metrics))
	for k, v := range f.metrics {
		out[k] = v
	}
	return out, nil
}

func (f *fakeChannel) HeapUsage(context.Context) (HeapUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heapCalls++
	if f.failHeap != nil && f.failHeap(f.heapCalls) {
		return HeapUsage{}, errTransient
	}
	return HeapUsage{UsedSize: f.heapUsed, TotalSize: f.heapUsed * 2}, nil
}

func (f *fakeChannel) EvalJSON(_ context.Context, js string) ([]byte, error) {
	f.mu.Lock()
	f.evalCalls[js]++
	call := f.evalCalls[js]
	gate, blocked := f.listenerGate, f.listenerBlocked
	fail := f.failEval != nil && f.failEval(js, call)
	f.mu.Unlock()

	if js == listenerCountJS && gate != nil {
		select {
		case blocked <- struct{}{}:
		default:
		}
		<-gate
	}
	if fail {
		return nil, errTransient
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch js {
	case listenerCountJS:
		return []byte(formatNum(f.listeners)), nil
	case domNodeCountJS:
		return []byte(formatNum(f.domNodes)), nil
	case navigationTimingJS:
		if f.timing == "" {
			return nil, errTransient
		}
		return []byte(f.timing), nil
	}
	return nil, errors.New("unexpected script")
}

func (f *fakeChannel) Subscribe(_ context.Context, sink func(EventSample)) (func(), error) {
	f.mu.Lock()
	f.sink = sink
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.unsubscribed = true
		f.mu.Unlock()
	}, nil
}

// emit delivers e the way a protocol event goroutine would.
func (f *fakeChannel) emit(e EventSample) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	if sink != nil {
		sink(e)
	}
}

func (f *fakeChannel) wasUnsubscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}

func formatNum(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
