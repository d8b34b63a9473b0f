// Package telemetry collects performance telemetry for one browser page.
//
// A Collector taps three sources on the same page: asynchronous DevTools
// protocol events (network and DOM), a fixed-interval sampling loop over
// Performance/Runtime metrics and page evaluations, and a one-shot read of
// the navigation-timing structure. Stop reconciles them into a single
// MetricsRecord.
package telemetry

import (
	"context"
	"fmt"
)

// Channel is the instrumentation channel of a single page.
// Implementations must be safe for concurrent use: the sampling loop and the
// scenario script call into the same channel.
type Channel interface {
	// EnableDomains enables the Performance, Network, DOM and Runtime domains.
	EnableDomains(ctx context.Context) error

	// PerformanceMetrics returns the current Performance.getMetrics snapshot
	// keyed by metric name.
	PerformanceMetrics(ctx context.Context) (map[string]float64, error)

	// HeapUsage returns the JS heap usage of the page.
	HeapUsage(ctx context.Context) (HeapUsage, error)

	// EvalJSON evaluates fn, a JavaScript function expression, in the page
	// and returns its result encoded as JSON.
	EvalJSON(ctx context.Context, fn string) ([]byte, error)

	// Subscribe delivers protocol events to sink until the returned function
	// is called. The returned function blocks until no further sink calls
	// can happen.
	Subscribe(ctx context.Context, sink func(EventSample)) (unsubscribe func(), err error)
}

// HeapUsage is the result of Runtime.getHeapUsage.
type HeapUsage struct {
	UsedSize  float64
	TotalSize float64
}

// EventKind identifies the protocol stream an EventSample came from.
type EventKind string

const (
	EventRequestSent      EventKind = "network-request-sent"
	EventResponseReceived EventKind = "network-response-received"
	EventLoadingFinished  EventKind = "network-loading-finished"
	EventDOMMutation      EventKind = "dom-mutation"
	EventDOMNodeCount     EventKind = "dom-node-count"
)

// EventSample is one protocol event. Only the fields relevant to Kind are
// set. Timestamp is the protocol's monotonic timestamp in seconds when the
// event carries one; OffsetMs is assigned by the collector on arrival.
type EventSample struct {
	Kind      EventKind `json:"kind"`
	OffsetMs  float64   `json:"offsetMs"`
	Timestamp float64   `json:"timestamp,omitempty"`

	RequestID    string  `json:"requestId,omitempty"`
	URL          string  `json:"url,omitempty"`
	Method       string  `json:"method,omitempty"`
	ResourceType string  `json:"resourceType,omitempty"`
	Status       int     `json:"status,omitempty"`
	MIMEType     string  `json:"mimeType,omitempty"`
	EncodedBytes float64 `json:"encodedBytes,omitempty"`

	Detail         string `json:"detail,omitempty"` // documentUpdated, childNodeInserted, childNodeRemoved
	NodeID         int    `json:"nodeId,omitempty"`
	ChildNodeCount int    `json:"childNodeCount,omitempty"`
}

// ChannelCommandError is a failed round trip to the instrumentation channel
// or the page. Inside the sampling loop it only drops the affected sample.
type ChannelCommandError struct {
	Command string
	Err     error
}

func (e *ChannelCommandError) Error() string {
	return fmt.Sprintf("channel command %s: %v", e.Command, e.Err)
}

func (e *ChannelCommandError) Unwrap() error { return e.Err }
