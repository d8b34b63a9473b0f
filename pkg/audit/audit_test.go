package audit

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/thesyncim/loginbench/pkg/condition"
)

func loadReport(t *testing.T) []byte {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", "report.json"))
	require.NoError(t, err)
	return raw
}

type fakeEngine struct {
	raw  []byte
	err  error
	url  string
	opts Options
}

func (f *fakeEngine) Run(url string, opts Options) ([]byte, error) {
	f.url, f.opts = url, opts
	return f.raw, f.err
}

func TestOptionsFor_NoThrottling(t *testing.T) {
	opts := OptionsFor(9222, condition.NoThrottling)

	assert.Equal(t, 9222, opts.Port)
	assert.Equal(t, "desktop", opts.FormFactor)
	assert.Equal(t, DesktopScreen, opts.Screen)
	assert.Equal(t, ThrottlingProvided, opts.Throttling.Method)
	assert.Equal(t, 1.0, opts.Throttling.CPUSlowdownMultiplier)
}

func TestOptionsFor_MirrorsCondition(t *testing.T) {
	tests := []struct {
		name     string
		cond     condition.Condition
		rtt      float64
		down, up float64
		cpu      float64
	}{
		{"fast3g", condition.FastNetwork, 150, 1638.4, 750, 1},
		{"slow3g", condition.SlowNetwork, 400, 500, 500, 1},
		{"medium-cpu", condition.MediumCPUOnly, 0, 0, 0, 4},
		{"slow3g+slow-cpu", condition.Combine(condition.Slow3G, condition.SlowCPU), 400, 500, 500, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := OptionsFor(1, tt.cond).Throttling
			assert.Equal(t, ThrottlingDevtools, th.Method)
			assert.InDelta(t, tt.rtt, th.RTTMs, 1e-9)
			assert.InDelta(t, tt.down, th.ThroughputKbps, 1e-9)
			assert.InDelta(t, tt.up, th.UploadThroughputKbps, 1e-9)
			assert.InDelta(t, tt.cpu, th.CPUSlowdownMultiplier, 1e-9)
		})
	}
}

func TestLighthouseArgs(t *testing.T) {
	args := LighthouseArgs("http://app/", OptionsFor(9333, condition.FastNetwork))

	assert.Equal(t, "http://app/", args[0])
	assert.Contains(t, args, "--port=9333")
	assert.Contains(t, args, "--output=json")
	assert.Contains(t, args, "--output-path=stdout")
	assert.Contains(t, args, "--disable-storage-reset")
	assert.Contains(t, args, "--throttling-method=devtools")
	assert.Contains(t, args, "--throttling.throughputKbps=1638.4")
	assert.Contains(t, args, "--throttling.uploadThroughputKbps=750")
	assert.Contains(t, args, "--throttling.rttMs=150")
	assert.Contains(t, args, "--screenEmulation.width=1350")

	plain := LighthouseArgs("http://app/", OptionsFor(9333, condition.NoThrottling))
	assert.Contains(t, plain, "--throttling-method=provided")
	assert.NotContains(t, plain, "--throttling.rttMs=0")
}

func TestExtract(t *testing.T) {
	report, err := Extract(loadReport(t))
	require.NoError(t, err)

	assert.Equal(t, 1204.0, report.Metrics["largestContentfulPaint"])
	assert.Equal(t, 42.0, report.Metrics["totalBlockingTime"])
	assert.Equal(t, 0.0031, report.Metrics["cumulativeLayoutShift"])
	assert.NotContains(t, report.Metrics, "lcpInvalidated", "non-numeric fields are dropped")

	require.Len(t, report.ResourceSummary, 3)
	assert.Equal(t, "script", report.ResourceSummary[1].ResourceType)
	assert.Equal(t, 14, report.TotalRequests())
	assert.Equal(t, 412330.0, report.TotalTransferSize())
}

func TestReport_TotalsWithoutAggregateRow(t *testing.T) {
	r := &Report{ResourceSummary: []Resource{
		{ResourceType: "script", RequestCount: 2, TransferSize: 100},
		{ResourceType: "image", RequestCount: 3, TransferSize: 50},
	}}
	assert.Equal(t, 5, r.TotalRequests())
	assert.Equal(t, 150.0, r.TotalTransferSize())
}

func TestExtract_MissingSections(t *testing.T) {
	_, err := Extract([]byte(`{"audits":{"resource-summary":{"details":{"items":[]}}}}`))
	assert.ErrorIs(t, err, errMissingSection)

	_, err = Extract([]byte(`{"audits":{"metrics":{"details":{"items":[{"interactive":1}]}}}}`))
	assert.ErrorIs(t, err, errMissingSection)

	_, err = Extract([]byte(`not json`))
	assert.Error(t, err)
}

func TestRunner_Run(t *testing.T) {
	engine := &fakeEngine{raw: loadReport(t)}
	r := NewRunner(engine, zaptest.NewLogger(t))

	report, err := r.Run("http://app/home", 9222, condition.SlowCPUOnly)
	require.NoError(t, err)
	assert.Equal(t, "http://app/home", engine.url)
	assert.Equal(t, 6.0, engine.opts.Throttling.CPUSlowdownMultiplier)
	assert.Equal(t, 1530.0, report.Metrics["interactive"])
}

func TestRunner_EngineFailure(t *testing.T) {
	cause := errors.New("connect ECONNREFUSED 127.0.0.1:9222")
	r := NewRunner(&fakeEngine{err: cause}, nil)

	_, err := r.Run("http://app/", 9222, condition.NoThrottling)
	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, "http://app/", engineErr.URL)
	assert.ErrorIs(t, err, cause)
}

func TestRunner_MalformedReportIsEngineError(t *testing.T) {
	r := NewRunner(&fakeEngine{raw: []byte(`{}`)}, nil)

	_, err := r.Run("http://app/", 9222, condition.NoThrottling)
	var engineErr *EngineError
	assert.ErrorAs(t, err, &engineErr)
}

func TestLighthouse_MissingBinary(t *testing.T) {
	l := Lighthouse{Binary: filepath.Join(t.TempDir(), "no-such-lighthouse")}
	_, err := l.Run("http://app/", OptionsFor(9222, condition.NoThrottling))
	assert.Error(t, err)
}

func TestLighthouse_ReadsStdout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine stub")
	}
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(reportPath, loadReport(t), 0o644))

	bin := filepath.Join(dir, "lighthouse")
	script := "#!/bin/sh\ncat '" + reportPath + "'\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	report, err := NewRunner(Lighthouse{Binary: bin}, nil).Run("http://app/", 9222, condition.NoThrottling)
	require.NoError(t, err)
	assert.Equal(t, 812.0, report.Metrics["firstContentfulPaint"])
}

func TestLighthouse_NonZeroExitCarriesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine stub")
	}
	bin := filepath.Join(t.TempDir(), "lighthouse")
	script := "#!/bin/sh\necho 'Unable to connect to Chrome' >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	_, err := Lighthouse{Binary: bin}.Run("http://app/", OptionsFor(9222, condition.NoThrottling))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unable to connect to Chrome")
}
