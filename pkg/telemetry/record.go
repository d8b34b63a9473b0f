package telemetry

import "time"

// Metric names a polled series.
type Metric string

const (
	MetricCPUTaskDuration     Metric = "cpuTaskDuration"
	MetricHeapUsedSize        Metric = "heapUsedSize"
	MetricScriptDuration      Metric = "scriptDuration"
	MetricLayoutDuration      Metric = "layoutDuration"
	MetricStyleRecalcDuration Metric = "styleRecalcDuration"
	MetricListenerCount       Metric = "listenerCount"
	MetricDOMNodeCount        Metric = "domNodeCount"
)

// perfMetricNames maps Performance.getMetrics names onto series.
var perfMetricNames = map[string]Metric{
	"TaskDuration":        MetricCPUTaskDuration,
	"ScriptDuration":      MetricScriptDuration,
	"LayoutDuration":      MetricLayoutDuration,
	"RecalcStyleDuration": MetricStyleRecalcDuration,
}

// PollSample is one value of a polled series. Tick is the index of the loop
// iteration that produced it; a dropped round trip leaves a gap in Tick
// rather than shifting later samples.
type PollSample struct {
	Tick     int     `json:"tick"`
	OffsetMs float64 `json:"offsetMs"`
	Value    float64 `json:"value"`
}

// Series holds every polled sequence. Sequences are independent and may
// differ in length.
type Series struct {
	CPUTaskDuration     []PollSample `json:"cpuTaskDuration"`
	HeapUsedSize        []PollSample `json:"heapUsedSize"`
	ScriptDuration      []PollSample `json:"scriptDuration"`
	LayoutDuration      []PollSample `json:"layoutDuration"`
	StyleRecalcDuration []PollSample `json:"styleRecalcDuration"`
	ListenerCount       []PollSample `json:"listenerCount"`
	DOMNodeCount        []PollSample `json:"domNodeCount"`
}

// Get returns the sequence for m.
func (s *Series) Get(m Metric) []PollSample {
	switch m {
	case MetricCPUTaskDuration:
		return s.CPUTaskDuration
	case MetricHeapUsedSize:
		return s.HeapUsedSize
	case MetricScriptDuration:
		return s.ScriptDuration
	case MetricLayoutDuration:
		return s.LayoutDuration
	case MetricStyleRecalcDuration:
		return s.StyleRecalcDuration
	case MetricListenerCount:
		return s.ListenerCount
	case MetricDOMNodeCount:
		return s.DOMNodeCount
	}
	return nil
}

func newSeries(m map[Metric][]PollSample) Series {
	cp := func(k Metric) []PollSample {
		return append([]PollSample{}, m[k]...)
	}
	return Series{
		CPUTaskDuration:     cp(MetricCPUTaskDuration),
		HeapUsedSize:        cp(MetricHeapUsedSize),
		ScriptDuration:      cp(MetricScriptDuration),
		LayoutDuration:      cp(MetricLayoutDuration),
		StyleRecalcDuration: cp(MetricStyleRecalcDuration),
		ListenerCount:       cp(MetricListenerCount),
		DOMNodeCount:        cp(MetricDOMNodeCount),
	}
}

// NetworkActivity groups the network event streams.
type NetworkActivity struct {
	Requests          []EventSample `json:"requests"`
	Responses         []EventSample `json:"responses"`
	LoadingFinished   []EventSample `json:"loadingFinished"`
	PeakThroughputBps *int64        `json:"peakThroughputBps,omitempty"`
}

// MetricsRecord is the consolidated telemetry of one scenario run.
// It is assembled once by Collector.Stop and not modified after it is
// written.
type MetricsRecord struct {
	Application string     `json:"application,omitempty"`
	Condition   string     `json:"condition,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	StoppedAt   *time.Time `json:"stoppedAt,omitempty"`

	LoginSuccessful  bool     `json:"loginSuccessful"`
	FormSubmissionMs *float64 `json:"formSubmissionTime,omitempty"`

	NavigationTiming NavigationTiming   `json:"browserPerformanceTiming"`
	Series           Series             `json:"series"`
	Network          NetworkActivity    `json:"network"`
	DOMEvents        []EventSample      `json:"domEvents"`
	FinalMetrics     map[string]float64 `json:"finalMetrics"`
	DroppedSamples   int                `json:"droppedSamples"`
}

// Login carries the scenario's verdict into Stop.
type Login struct {
	Successful bool
	// SubmitDuration is the time from clicking submit to the post-login
	// marker; ignored unless Successful.
	SubmitDuration time.Duration
}
