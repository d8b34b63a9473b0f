package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/thesyncim/loginbench/pkg/condition"
	"github.com/thesyncim/loginbench/pkg/scenario"
	"github.com/thesyncim/loginbench/pkg/telemetry"
)

// Page is one Chrome tab. Its methods are safe for concurrent use: the
// collector samples while the scenario types and clicks.
type Page struct {
	page    *rod.Page
	timeout time.Duration
	logger  *zap.Logger
}

// EnableDomains enables Performance, Network, DOM and Runtime, then requests
// the full document so DOM mutation events are reported for every node.
func (p *Page) EnableDomains(ctx context.Context) error {
	page := p.page.Context(ctx)
	if err := (proto.PerformanceEnable{}).Call(page); err != nil {
		return fmt.Errorf("Performance.enable: %w", err)
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return fmt.Errorf("Network.enable: %w", err)
	}
	if err := (proto.DOMEnable{}).Call(page); err != nil {
		return fmt.Errorf("DOM.enable: %w", err)
	}
	if err := (proto.RuntimeEnable{}).Call(page); err != nil {
		return fmt.Errorf("Runtime.enable: %w", err)
	}
	depth := -1
	if _, err := (proto.DOMGetDocument{Depth: &depth}).Call(page); err != nil {
		return fmt.Errorf("DOM.getDocument: %w", err)
	}
	return nil
}

// PerformanceMetrics returns Performance.getMetrics keyed by name.
func (p *Page) PerformanceMetrics(ctx context.Context) (map[string]float64, error) {
	res, err := (proto.PerformanceGetMetrics{}).Call(p.page.Context(ctx))
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(res.Metrics))
	for _, m := range res.Metrics {
		out[m.Name] = m.Value
	}
	return out, nil
}

// HeapUsage returns Runtime.getHeapUsage.
func (p *Page) HeapUsage(ctx context.Context) (telemetry.HeapUsage, error) {
	res, err := (proto.RuntimeGetHeapUsage{}).Call(p.page.Context(ctx))
	if err != nil {
		return telemetry.HeapUsage{}, err
	}
	return telemetry.HeapUsage{UsedSize: res.UsedSize, TotalSize: res.TotalSize}, nil
}

// EvalJSON evaluates fn and returns its value as JSON.
func (p *Page) EvalJSON(ctx context.Context, fn string) ([]byte, error) {
	res, err := p.page.Context(ctx).Eval(fn)
	if err != nil {
		return nil, fmt.Errorf("eval failed: %w", err)
	}
	return []byte(res.Value.JSON("", "")), nil
}

// Subscribe forwards network and DOM events to sink until unsubscribed.
func (p *Page) Subscribe(ctx context.Context, sink func(telemetry.EventSample)) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)
	wait := p.page.Context(subCtx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			s := telemetry.EventSample{
				Kind:         telemetry.EventRequestSent,
				Timestamp:    float64(e.Timestamp),
				RequestID:    string(e.RequestID),
				ResourceType: string(e.Type),
			}
			if e.Request != nil {
				s.URL = e.Request.URL
				s.Method = e.Request.Method
			}
			sink(s)
		},
		func(e *proto.NetworkResponseReceived) {
			s := telemetry.EventSample{
				Kind:         telemetry.EventResponseReceived,
				Timestamp:    float64(e.Timestamp),
				RequestID:    string(e.RequestID),
				ResourceType: string(e.Type),
			}
			if e.Response != nil {
				s.URL = e.Response.URL
				s.Status = e.Response.Status
				s.MIMEType = e.Response.MIMEType
				s.EncodedBytes = e.Response.EncodedDataLength
			}
			sink(s)
		},
		func(e *proto.NetworkLoadingFinished) {
			sink(telemetry.EventSample{
				Kind:         telemetry.EventLoadingFinished,
				Timestamp:    float64(e.Timestamp),
				RequestID:    string(e.RequestID),
				EncodedBytes: e.EncodedDataLength,
			})
		},
		func(*proto.DOMDocumentUpdated) {
			sink(telemetry.EventSample{Kind: telemetry.EventDOMMutation, Detail: "documentUpdated"})
		},
		func(e *proto.DOMChildNodeInserted) {
			s := telemetry.EventSample{
				Kind:   telemetry.EventDOMMutation,
				Detail: "childNodeInserted",
				NodeID: int(e.ParentNodeID),
			}
			sink(s)
		},
		func(e *proto.DOMChildNodeRemoved) {
			sink(telemetry.EventSample{
				Kind:   telemetry.EventDOMMutation,
				Detail: "childNodeRemoved",
				NodeID: int(e.NodeID),
			})
		},
		func(e *proto.DOMChildNodeCountUpdated) {
			sink(telemetry.EventSample{
				Kind:           telemetry.EventDOMNodeCount,
				NodeID:         int(e.NodeID),
				ChildNodeCount: e.ChildNodeCount,
			})
		},
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

// EmulateNetwork issues Network.emulateNetworkConditions.
func (p *Page) EmulateNetwork(ctx context.Context, np condition.NetworkParams) error {
	return proto.NetworkEmulateNetworkConditions{
		Offline:            np.Offline,
		Latency:            np.Latency,
		DownloadThroughput: np.DownloadThroughput,
		UploadThroughput:   np.UploadThroughput,
	}.Call(p.page.Context(ctx))
}

// SetCPUThrottlingRate issues Emulation.setCPUThrottlingRate.
func (p *Page) SetCPUThrottlingRate(ctx context.Context, rate float64) error {
	return proto.EmulationSetCPUThrottlingRate{Rate: rate}.Call(p.page.Context(ctx))
}

// Goto navigates to url and waits for the load event within timeout.
// Running out of time yields an error wrapping scenario.ErrNavigationTimeout.
func (p *Page) Goto(ctx context.Context, url string, timeout time.Duration) error {
	page := p.page.Context(ctx).Timeout(timeout)
	err := page.Navigate(url)
	if err == nil {
		err = page.WaitLoad()
	}
	if err != nil {
		p.logger.Debug("navigation failed", zap.String("url", url), zap.Duration("timeout", timeout), zap.Error(err))
		return navError(url, err)
	}
	return nil
}

// Type focuses selector and types text into it.
func (p *Page) Type(ctx context.Context, selector, text string) error {
	el, err := p.page.Context(ctx).Timeout(p.timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	return el.Input(text)
}

// Click clicks the element matching selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Timeout(p.timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// WaitVisible waits until selector matches a visible element.
func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	page := p.page.Context(ctx).Timeout(timeout)
	el, err := page.Element(selector)
	if err != nil {
		return navError(selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return navError(selector, err)
	}
	return nil
}

// Has reports whether selector currently matches an element, without
// waiting.
func (p *Page) Has(ctx context.Context, selector string) (bool, error) {
	ok, _, err := p.page.Context(ctx).Has(selector)
	return ok, err
}

// URL returns the page's current URL.
func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Close closes the tab.
func (p *Page) Close() error {
	return p.page.Close()
}

func navError(target string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", target, scenario.ErrNavigationTimeout, err)
	}
	return fmt.Errorf("%s: %w", target, err)
}

var _ scenario.Page = (*Page)(nil)
