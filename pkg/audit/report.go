package audit

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Report section names in the engine output.
const (
	metricsAudit         = "metrics"
	resourceSummaryAudit = "resource-summary"
)

var errMissingSection = errors.New("report section missing")

// Resource is one row of the resource summary.
type Resource struct {
	ResourceType string  `json:"resourceType"`
	Label        string  `json:"label"`
	RequestCount int     `json:"requestCount"`
	TransferSize float64 `json:"transferSize"`
}

// Report is the normalized audit result persisted per (application,
// condition). Everything else in the engine output is discarded.
type Report struct {
	Application     string             `json:"application,omitempty"`
	Condition       string             `json:"condition,omitempty"`
	Metrics         map[string]float64 `json:"metrics"`
	ResourceSummary []Resource         `json:"resourceSummary"`
}

// TotalRequests sums requestCount over the per-type rows, skipping the
// aggregate "total" row when present.
func (r *Report) TotalRequests() int {
	if t, ok := r.total(); ok {
		return t.RequestCount
	}
	n := 0
	for _, res := range r.ResourceSummary {
		n += res.RequestCount
	}
	return n
}

// TotalTransferSize is the transfer-size counterpart of TotalRequests.
func (r *Report) TotalTransferSize() float64 {
	if t, ok := r.total(); ok {
		return t.TransferSize
	}
	var n float64
	for _, res := range r.ResourceSummary {
		n += res.TransferSize
	}
	return n
}

func (r *Report) total() (Resource, bool) {
	for _, res := range r.ResourceSummary {
		if res.ResourceType == "total" {
			return res, true
		}
	}
	return Resource{}, false
}

type rawReport struct {
	Audits map[string]struct {
		Details struct {
			Items []json.RawMessage `json:"items"`
		} `json:"details"`
	} `json:"audits"`
}

// Extract pulls the core-metrics summary and the resource summary out of a
// full engine report.
func Extract(raw []byte) (*Report, error) {
	var full rawReport
	if err := json.Unmarshal(raw, &full); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}

	metricsItems := full.Audits[metricsAudit].Details.Items
	if len(metricsItems) == 0 {
		return nil, fmt.Errorf("%w: %s", errMissingSection, metricsAudit)
	}
	metrics, err := numericFields(metricsItems[0])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", metricsAudit, err)
	}

	resourceItems, ok := full.Audits[resourceSummaryAudit]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errMissingSection, resourceSummaryAudit)
	}
	resources := make([]Resource, 0, len(resourceItems.Details.Items))
	for _, item := range resourceItems.Details.Items {
		var res Resource
		if err := json.Unmarshal(item, &res); err != nil {
			return nil, fmt.Errorf("decode %s: %w", resourceSummaryAudit, err)
		}
		resources = append(resources, res)
	}

	return &Report{Metrics: metrics, ResourceSummary: resources}, nil
}

// numericFields keeps the number-valued fields of a JSON object.
func numericFields(item json.RawMessage) (map[string]float64, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(fields))
	for k, v := range fields {
		var f float64
		if json.Unmarshal(v, &f) == nil {
			out[k] = f
		}
	}
	return out, nil
}
