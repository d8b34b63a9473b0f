package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/thesyncim/loginbench/pkg/audit"
	"github.com/thesyncim/loginbench/pkg/condition"
	"github.com/thesyncim/loginbench/pkg/results"
	"github.com/thesyncim/loginbench/pkg/telemetry"
)

// fakePage records every call the executor makes and answers with canned
// telemetry.
type fakePage struct {
	mu sync.Mutex

	gotoErr    error
	waitErr    error
	typeErr    error
	panicOn    string
	closePanic bool
	closeCalls int
	calls      []string
	network    []condition.NetworkParams
	cpuRates   []float64
	url        string
}

func (p *fakePage) call(name string) {
	p.mu.Lock()
	p.calls = append(p.calls, name)
	panicOn := p.panicOn
	p.mu.Unlock()
	if name == panicOn {
		panic("boom in " + name)
	}
}

func (p *fakePage) EnableDomains(context.Context) error {
	p.call("enable")
	return nil
}

func (p *fakePage) PerformanceMetrics(context.Context) (map[string]float64, error) {
	return map[string]float64{"TaskDuration": 0.25, "ScriptDuration": 0.1, "JSHeapUsedSize": 1 << 20}, nil
}

func (p *fakePage) HeapUsage(context.Context) (telemetry.HeapUsage, error) {
	return telemetry.HeapUsage{UsedSize: 1 << 20, TotalSize: 2 << 20}, nil
}

func (p *fakePage) EvalJSON(_ context.Context, fn string) ([]byte, error) {
	if fn == `() => window.performance.timing.toJSON()` {
		return json.Marshal(map[string]float64{
			"navigationStart":          1000,
			"domainLookupStart":        1010,
			"domainLookupEnd":          1020,
			"connectStart":             1020,
			"connectEnd":               1040,
			"requestStart":             1040,
			"responseStart":            1100,
			"responseEnd":              1150,
			"domInteractive":           1300,
			"domContentLoadedEventEnd": 1350,
			"domComplete":              1500,
			"loadEventEnd":             1520,
		})
	}
	return []byte("42"), nil
}

func (p *fakePage) Subscribe(context.Context, func(telemetry.EventSample)) (func(), error) {
	return func() {}, nil
}

func (p *fakePage) EmulateNetwork(_ context.Context, np condition.NetworkParams) error {
	p.call("network")
	p.mu.Lock()
	p.network = append(p.network, np)
	p.mu.Unlock()
	return nil
}

func (p *fakePage) SetCPUThrottlingRate(_ context.Context, rate float64) error {
	p.call("cpu")
	p.mu.Lock()
	p.cpuRates = append(p.cpuRates, rate)
	p.mu.Unlock()
	return nil
}

func (p *fakePage) Goto(_ context.Context, url string, _ time.Duration) error {
	p.call("goto")
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return p.gotoErr
}

func (p *fakePage) Type(_ context.Context, selector, _ string) error {
	p.call("type " + selector)
	return p.typeErr
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.call("click " + selector)
	time.Sleep(time.Millisecond)
	return nil
}

func (p *fakePage) WaitVisible(_ context.Context, selector string, _ time.Duration) error {
	p.call("wait " + selector)
	return p.waitErr
}

func (p *fakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	p.closeCalls++
	closePanic := p.closePanic
	p.mu.Unlock()
	if closePanic {
		panic("target crashed")
	}
	return nil
}

func (p *fakePage) closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCalls
}

func (p *fakePage) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// fakeBrowser hands out a fresh page per OpenPage, configured by setup.
type fakeBrowser struct {
	mu      sync.Mutex
	pages   []*fakePage
	setup   func(n int, p *fakePage)
	openErr error
}

func (b *fakeBrowser) OpenPage(context.Context) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	p := &fakePage{}
	if b.setup != nil {
		b.setup(len(b.pages), p)
	}
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *fakeBrowser) DebugPort() (int, error) { return 9222, nil }

func (b *fakeBrowser) opened() []*fakePage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*fakePage(nil), b.pages...)
}

// fakeAuditor returns a fixed report or an engine error.
type fakeAuditor struct {
	mu    sync.Mutex
	fail  bool
	ports []int
	urls  []string
}

func (a *fakeAuditor) Run(pageURL string, port int, c condition.Condition) (*audit.Report, error) {
	a.mu.Lock()
	a.ports = append(a.ports, port)
	a.urls = append(a.urls, pageURL)
	a.mu.Unlock()
	if a.fail {
		return nil, &audit.EngineError{URL: pageURL, Err: errors.New("lighthouse exited 1")}
	}
	return &audit.Report{
		Metrics: map[string]float64{"firstContentfulPaint": 812, "interactive": 1640},
		ResourceSummary: []audit.Resource{
			{ResourceType: "total", Label: "Total", RequestCount: 12, TransferSize: 204800},
		},
	}, nil
}

type memRecorder struct {
	mu      sync.Mutex
	entries []results.Entry
	err     error
}

func (r *memRecorder) Record(_ context.Context, e results.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return r.err
}
