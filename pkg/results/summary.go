package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"

	"github.com/thesyncim/loginbench/pkg/audit"
	"github.com/thesyncim/loginbench/pkg/telemetry"
)

// SummaryRow is one (application, condition) line of the comparison table.
// Nil fields were not available: the artifact is missing or the value was
// never measured.
type SummaryRow struct {
	Application string
	Condition   string

	LoginSuccessful  *bool
	DOMContentLoaded *float64
	DOMComplete      *float64
	FormSubmission   *float64
	JSHeapUsedSize   *float64

	LargestContentfulPaint *float64
	Interactive            *float64
	TotalBlockingTime      *float64
	MaxPotentialFID        *float64
	TimeToFirstByte        *float64
	CumulativeLayoutShift  *float64
	TotalRequests          *int
	TotalTransferSize      *float64
}

var summaryHeader = []string{
	"application", "condition", "login_successful",
	"dom_content_loaded_ms", "dom_complete_ms", "form_submission_ms", "js_heap_used_bytes",
	"lcp_ms", "interactive_ms", "total_blocking_time_ms", "max_potential_fid_ms", "ttfb_ms",
	"cumulative_layout_shift", "total_requests", "total_transfer_bytes",
}

// Summarize reads the artifacts of every (application, condition) pair.
// Missing artifacts leave their columns empty; malformed ones are errors.
func (w *Writer) Summarize(applications, conditions []string) ([]SummaryRow, error) {
	rows := make([]SummaryRow, 0, len(applications)*len(conditions))
	for _, app := range applications {
		for _, cond := range conditions {
			row := SummaryRow{Application: app, Condition: cond}

			var rec telemetry.MetricsRecord
			switch err := w.Read(app, cond, KindMetrics, &rec); {
			case err == nil:
				login := rec.LoginSuccessful
				row.LoginSuccessful = &login
				row.DOMContentLoaded = rec.NavigationTiming.DOMContentLoaded
				row.DOMComplete = rec.NavigationTiming.DOMComplete
				row.TimeToFirstByte = rec.NavigationTiming.TimeToFirstByte
				row.FormSubmission = rec.FormSubmissionMs
				row.JSHeapUsedSize = lookup(rec.FinalMetrics, "JSHeapUsedSize")
			case !errors.Is(err, fs.ErrNotExist):
				return nil, err
			}

			var rep audit.Report
			switch err := w.Read(app, cond, KindAudit, &rep); {
			case err == nil:
				row.LargestContentfulPaint = lookup(rep.Metrics, "largestContentfulPaint")
				row.Interactive = lookup(rep.Metrics, "interactive")
				row.TotalBlockingTime = lookup(rep.Metrics, "totalBlockingTime")
				row.MaxPotentialFID = lookup(rep.Metrics, "maxPotentialFID")
				row.CumulativeLayoutShift = lookup(rep.Metrics, "cumulativeLayoutShift")
				requests := rep.TotalRequests()
				transfer := rep.TotalTransferSize()
				row.TotalRequests = &requests
				row.TotalTransferSize = &transfer
			case !errors.Is(err, fs.ErrNotExist):
				return nil, err
			}

			rows = append(rows, row)
		}
	}
	return rows, nil
}

// WriteCSV renders rows with a header line.
func WriteCSV(out io.Writer, rows []SummaryRow) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(summaryHeader); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Application, r.Condition, fmtBool(r.LoginSuccessful),
			fmtFloat(r.DOMContentLoaded), fmtFloat(r.DOMComplete), fmtFloat(r.FormSubmission), fmtFloat(r.JSHeapUsedSize),
			fmtFloat(r.LargestContentfulPaint), fmtFloat(r.Interactive), fmtFloat(r.TotalBlockingTime),
			fmtFloat(r.MaxPotentialFID), fmtFloat(r.TimeToFirstByte), fmtFloat(r.CumulativeLayoutShift),
			fmtInt(r.TotalRequests), fmtFloat(r.TotalTransferSize),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func lookup(m map[string]float64, key string) *float64 {
	v, ok := m[key]
	if !ok {
		return nil
	}
	return &v
}

func fmtFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func fmtInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func fmtBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}
