package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var errNoNavigationStart = errors.New("navigation timing has no navigationStart")

// navigationTimingJS reads the legacy PerformanceTiming structure. Its fields
// are prototype getters, which a by-value evaluation result drops, so the
// script returns the plain object built by toJSON.
const navigationTimingJS = `() => window.performance.timing.toJSON()`

// RawTiming is the subset of PerformanceTiming the derived fields use.
// Timestamps are epoch milliseconds; zero means the event has not happened.
type RawTiming struct {
	NavigationStart          float64 `json:"navigationStart"`
	DomainLookupStart        float64 `json:"domainLookupStart"`
	DomainLookupEnd          float64 `json:"domainLookupEnd"`
	ConnectStart             float64 `json:"connectStart"`
	ConnectEnd               float64 `json:"connectEnd"`
	RequestStart             float64 `json:"requestStart"`
	ResponseStart            float64 `json:"responseStart"`
	ResponseEnd              float64 `json:"responseEnd"`
	DomInteractive           float64 `json:"domInteractive"`
	DomContentLoadedEventEnd float64 `json:"domContentLoadedEventEnd"`
	DomComplete              float64 `json:"domComplete"`
	LoadEventEnd             float64 `json:"loadEventEnd"`
}

// NavigationTiming holds durations in milliseconds derived from RawTiming.
// A nil field means one of its timestamps never arrived.
type NavigationTiming struct {
	DNSLookup        *float64 `json:"dnsLookup,omitempty"`
	TCPConnect       *float64 `json:"tcpConnect,omitempty"`
	TimeToFirstByte  *float64 `json:"timeToFirstByte,omitempty"`
	ResponseTime     *float64 `json:"responseTime,omitempty"`
	DOMInteractive   *float64 `json:"domInteractive,omitempty"`
	DOMContentLoaded *float64 `json:"domContentLoaded,omitempty"`
	DOMComplete      *float64 `json:"domComplete,omitempty"`
	PageLoad         *float64 `json:"pageLoad,omitempty"`
}

// Empty reports whether no field could be derived.
func (n NavigationTiming) Empty() bool {
	return n == NavigationTiming{}
}

// DeriveNavigationTiming computes the point-in-time durations. A field is
// set only when both timestamps are present and ordered, so every reported
// value is non-negative.
func DeriveNavigationTiming(r RawTiming) NavigationTiming {
	return NavigationTiming{
		DNSLookup:        span(r.DomainLookupStart, r.DomainLookupEnd),
		TCPConnect:       span(r.ConnectStart, r.ConnectEnd),
		TimeToFirstByte:  span(r.RequestStart, r.ResponseStart),
		ResponseTime:     span(r.ResponseStart, r.ResponseEnd),
		DOMInteractive:   span(r.NavigationStart, r.DomInteractive),
		DOMContentLoaded: span(r.NavigationStart, r.DomContentLoadedEventEnd),
		DOMComplete:      span(r.NavigationStart, r.DomComplete),
		PageLoad:         span(r.NavigationStart, r.LoadEventEnd),
	}
}

func span(start, end float64) *float64 {
	if start <= 0 || end <= 0 || end < start {
		return nil
	}
	d := end - start
	return &d
}

// CaptureNavigationTiming reads the navigation-timing structure once and
// stores the derived fields for the record. Call it after the page has
// signalled load; a later call replaces the earlier value.
func (c *Collector) CaptureNavigationTiming(ctx context.Context) (NavigationTiming, error) {
	raw, err := c.ch.EvalJSON(ctx, navigationTimingJS)
	if err != nil {
		return NavigationTiming{}, &ChannelCommandError{Command: "performance.timing", Err: err}
	}

	var r RawTiming
	if err := json.Unmarshal(raw, &r); err != nil {
		return NavigationTiming{}, fmt.Errorf("decode navigation timing: %w", err)
	}
	if r.NavigationStart <= 0 {
		return NavigationTiming{}, errNoNavigationStart
	}
	nt := DeriveNavigationTiming(r)

	c.mu.Lock()
	if !c.stopped {
		c.nav = nt
	}
	c.mu.Unlock()
	return nt, nil
}
