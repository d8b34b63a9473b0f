package audit

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Engine produces a full audit report for url. Implementations are opaque:
// the runner only relies on the two sections Extract reads.
type Engine interface {
	Run(url string, opts Options) ([]byte, error)
}

// DefaultLighthouseBinary is the engine executable looked up on PATH.
const DefaultLighthouseBinary = "lighthouse"

// stderrTail bounds how much engine stderr is carried into an error.
const stderrTail = 2048

// Lighthouse runs the Lighthouse CLI against an already running browser.
// The call is not cancellable: it runs until the CLI exits.
type Lighthouse struct {
	// Binary is the executable to run. Default: DefaultLighthouseBinary.
	Binary string
	// ExtraArgs are appended after the generated flags.
	ExtraArgs []string
}

// Run implements Engine.
func (l Lighthouse) Run(url string, opts Options) ([]byte, error) {
	bin := l.Binary
	if bin == "" {
		bin = DefaultLighthouseBinary
	}

	args := append(LighthouseArgs(url, opts), l.ExtraArgs...)
	cmd := exec.Command(bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > stderrTail {
			msg = msg[len(msg)-stderrTail:]
		}
		return nil, fmt.Errorf("%s exited: %w: %s", bin, err, msg)
	}
	return stdout.Bytes(), nil
}

// LighthouseArgs renders opts as Lighthouse CLI flags. Storage reset is
// disabled so an authenticated page stays authenticated during the audit.
func LighthouseArgs(url string, opts Options) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

	args := []string{
		url,
		"--port=" + strconv.Itoa(opts.Port),
		"--output=json",
		"--output-path=stdout",
		"--only-categories=performance",
		"--disable-storage-reset",
		"--quiet",
		"--form-factor=" + opts.FormFactor,
		"--screenEmulation.mobile=" + strconv.FormatBool(opts.Screen.Mobile),
		"--screenEmulation.width=" + strconv.Itoa(opts.Screen.Width),
		"--screenEmulation.height=" + strconv.Itoa(opts.Screen.Height),
		"--screenEmulation.deviceScaleFactor=" + f(opts.Screen.DeviceScaleFactor),
		"--screenEmulation.disabled=" + strconv.FormatBool(opts.Screen.Disabled),
		"--throttling-method=" + opts.Throttling.Method,
	}
	if opts.Throttling.Method == ThrottlingDevtools {
		args = append(args,
			"--throttling.rttMs="+f(opts.Throttling.RTTMs),
			"--throttling.throughputKbps="+f(opts.Throttling.ThroughputKbps),
			"--throttling.uploadThroughputKbps="+f(opts.Throttling.UploadThroughputKbps),
			"--throttling.cpuSlowdownMultiplier="+f(opts.Throttling.CPUSlowdownMultiplier),
		)
	}
	return args
}
