// Package audit runs an external performance-audit engine against a live
// page and keeps the two report sections the comparison needs.
package audit

import "github.com/thesyncim/loginbench/pkg/condition"

// Throttling methods understood by the engine.
const (
	// ThrottlingDevtools makes the engine apply the throttling itself.
	ThrottlingDevtools = "devtools"
	// ThrottlingProvided measures the page as-is.
	ThrottlingProvided = "provided"
)

// ScreenEmulation is the emulated viewport.
type ScreenEmulation struct {
	Mobile            bool
	Width             int
	Height            int
	DeviceScaleFactor float64
	Disabled          bool
}

// Throttling mirrors a condition in the engine's units.
type Throttling struct {
	Method                string
	RTTMs                 float64
	ThroughputKbps        float64
	UploadThroughputKbps  float64
	CPUSlowdownMultiplier float64
}

// Options are passed to the engine for one audit.
type Options struct {
	// Port is the remote debugging port of the browser to audit through.
	Port       int
	FormFactor string
	Screen     ScreenEmulation
	Throttling Throttling
}

// DesktopScreen is the desktop viewport used for every audit.
var DesktopScreen = ScreenEmulation{
	Width:             1350,
	Height:            940,
	DeviceScaleFactor: 1,
}

// OptionsFor builds engine options that reproduce c, so the audit and the
// interactive run measure the same environment.
func OptionsFor(port int, c condition.Condition) Options {
	opts := Options{
		Port:       port,
		FormFactor: "desktop",
		Screen:     DesktopScreen,
		Throttling: Throttling{Method: ThrottlingProvided, CPUSlowdownMultiplier: 1},
	}
	if !c.Throttled() {
		return opts
	}

	opts.Throttling.Method = ThrottlingDevtools
	if n := c.Network(); n.Throttled() {
		p := n.Params()
		opts.Throttling.RTTMs = p.Latency
		opts.Throttling.ThroughputKbps = bytesPerSecToKbps(p.DownloadThroughput)
		opts.Throttling.UploadThroughputKbps = bytesPerSecToKbps(p.UploadThroughput)
	}
	opts.Throttling.CPUSlowdownMultiplier = c.CPU().Rate()
	return opts
}

func bytesPerSecToKbps(v float64) float64 {
	return v * 8 / 1024
}
