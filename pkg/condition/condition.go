// Package condition models the network and CPU throttling profiles a
// scenario runs under and applies them to a browser page.
//
// A Condition is one Network profile plus one CPU profile. Both profile types
// are closed: their fields are unexported and the package variables below are
// the only values a caller can obtain, so an unrecognized profile cannot be
// constructed outside this package. Free-form labels only enter through Parse.
package condition

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCondition is returned by Parse for labels outside the fixed set.
var ErrUnknownCondition = errors.New("unknown condition")

// Network is a network throttling profile.
// The zero value is NetworkNone.
type Network struct {
	name  string
	alias string

	// Throughputs are in bytes per second, latency is round-trip.
	downloadBps float64
	uploadBps   float64
	latencyMs   float64
}

// Network profiles.
var (
	NetworkNone = Network{}
	Fast3G      = Network{name: "fast3g", alias: "fast-network", downloadBps: 1.6 * 1024 * 1024 / 8, uploadBps: 750 * 1024 / 8, latencyMs: 150}
	Slow3G      = Network{name: "slow3g", alias: "slow-network", downloadBps: 500 * 1024 / 8, uploadBps: 500 * 1024 / 8, latencyMs: 400}
)

// Name returns the profile label, empty for NetworkNone.
func (n Network) Name() string { return n.name }

// Throttled reports whether n limits the network at all.
func (n Network) Throttled() bool { return n.name != "" }

// Params returns the emulation parameters for n. NetworkNone maps to the
// CDP "no throttling" encoding: -1 throughputs and zero latency.
func (n Network) Params() NetworkParams {
	if !n.Throttled() {
		return NetworkParams{DownloadThroughput: -1, UploadThroughput: -1}
	}
	return NetworkParams{
		DownloadThroughput: n.downloadBps,
		UploadThroughput:   n.uploadBps,
		Latency:            n.latencyMs,
	}
}

// CPU is a CPU slowdown profile.
// The zero value is CPUNone.
type CPU struct {
	name string
	rate float64
}

// CPU profiles.
var (
	CPUNone   = CPU{}
	MediumCPU = CPU{name: "medium-cpu", rate: 4}
	SlowCPU   = CPU{name: "slow-cpu", rate: 6}
)

// Name returns the profile label, empty for CPUNone.
func (c CPU) Name() string { return c.name }

// Throttled reports whether c slows the CPU at all.
func (c CPU) Throttled() bool { return c.name != "" }

// Rate returns the slowdown multiplier, 1 for CPUNone.
func (c CPU) Rate() float64 {
	if !c.Throttled() {
		return 1
	}
	return c.rate
}

// Condition is an immutable network + CPU profile pair.
// The zero value is NoThrottling.
type Condition struct {
	network Network
	cpu     CPU
}

// Predefined single-profile conditions.
var (
	NoThrottling  = Condition{}
	FastNetwork   = Condition{network: Fast3G}
	SlowNetwork   = Condition{network: Slow3G}
	MediumCPUOnly = Condition{cpu: MediumCPU}
	SlowCPUOnly   = Condition{cpu: SlowCPU}
)

const noThrottlingLabel = "no-throttling"

// Combine builds a condition that applies both n and c.
func Combine(n Network, c CPU) Condition {
	return Condition{network: n, cpu: c}
}

// Network returns the network half of the condition.
func (c Condition) Network() Network { return c.network }

// CPU returns the CPU half of the condition.
func (c Condition) CPU() CPU { return c.cpu }

// Throttled reports whether any profile is active. Throttled runs get a
// longer navigation budget.
func (c Condition) Throttled() bool {
	return c.network.Throttled() || c.cpu.Throttled()
}

// Label returns the canonical label used in file names and logs, e.g.
// "no-throttling", "slow3g" or "fast3g+medium-cpu".
func (c Condition) Label() string {
	switch {
	case !c.Throttled():
		return noThrottlingLabel
	case c.network.Throttled() && c.cpu.Throttled():
		return c.network.name + "+" + c.cpu.name
	case c.network.Throttled():
		return c.network.name
	default:
		return c.cpu.name
	}
}

// String implements fmt.Stringer.
func (c Condition) String() string { return c.Label() }

var (
	networks = []Network{Fast3G, Slow3G}
	cpus     = []CPU{MediumCPU, SlowCPU}
)

// Parse maps a label back to its Condition. Accepted labels are
// "no-throttling", any single profile name, and "<network>+<cpu>". The
// network profiles also answer to "fast-network" and "slow-network".
// Matching is case-insensitive.
func Parse(label string) (Condition, error) {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == noThrottlingLabel {
		return NoThrottling, nil
	}

	var c Condition
	parts := strings.Split(l, "+")
	if len(parts) > 2 {
		return Condition{}, fmt.Errorf("%w: %q", ErrUnknownCondition, label)
	}
	for _, part := range parts {
		if n, ok := lookupNetwork(part); ok && !c.network.Throttled() {
			c.network = n
			continue
		}
		if p, ok := lookupCPU(part); ok && !c.cpu.Throttled() {
			c.cpu = p
			continue
		}
		return Condition{}, fmt.Errorf("%w: %q", ErrUnknownCondition, label)
	}
	return c, nil
}

// ParseAll parses every label, failing on the first unknown one.
func ParseAll(labels []string) ([]Condition, error) {
	out := make([]Condition, 0, len(labels))
	for _, l := range labels {
		c, err := Parse(l)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// DefaultMatrix returns the five single-profile conditions in run order.
func DefaultMatrix() []Condition {
	return []Condition{NoThrottling, FastNetwork, SlowNetwork, MediumCPUOnly, SlowCPUOnly}
}

// DefaultLabels returns the labels of DefaultMatrix.
func DefaultLabels() []string {
	m := DefaultMatrix()
	out := make([]string, len(m))
	for i, c := range m {
		out[i] = c.Label()
	}
	return out
}

// Labels returns every canonical label, combinations included.
func Labels() []string {
	out := []string{noThrottlingLabel}
	for _, n := range networks {
		out = append(out, n.name)
	}
	for _, c := range cpus {
		out = append(out, c.name)
	}
	for _, n := range networks {
		for _, c := range cpus {
			out = append(out, Combine(n, c).Label())
		}
	}
	return out
}

func lookupNetwork(name string) (Network, bool) {
	for _, n := range networks {
		if n.name == name || n.alias == name {
			return n, true
		}
	}
	return Network{}, false
}

func lookupCPU(name string) (CPU, bool) {
	for _, c := range cpus {
		if c.name == name {
			return c, true
		}
	}
	return CPU{}, false
}
