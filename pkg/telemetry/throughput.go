package telemetry

import (
	"sort"
	"time"
)

// DefaultThroughputWindow matches the one-second window browsers use for
// their own transfer-rate estimates.
const DefaultThroughputWindow = time.Second

// PeakThroughput replays loading-finished events in protocol-timestamp
// order and returns the highest rate, in bits per second, seen over any
// window ending at an event. A window needs at least two events spanning a
// millisecond or more. Events without a timestamp are ignored and a
// non-positive window falls back to DefaultThroughputWindow.
func PeakThroughput(events []EventSample, window time.Duration) (int64, bool) {
	if window <= 0 {
		window = DefaultThroughputWindow
	}

	timed := make([]EventSample, 0, len(events))
	for _, e := range events {
		if e.Timestamp > 0 {
			timed = append(timed, e)
		}
	}
	sort.SliceStable(timed, func(i, j int) bool { return timed[i].Timestamp < timed[j].Timestamp })

	at := func(e EventSample) time.Duration {
		return time.Duration(e.Timestamp * float64(time.Second))
	}

	var (
		peak  int64
		found bool
		total int64
		start int
	)
	for end, e := range timed {
		now := at(e)
		total += int64(e.EncodedBytes)
		for ; at(timed[start]) < now-window; start++ {
			total -= int64(timed[start].EncodedBytes)
		}

		if end-start < 1 {
			continue
		}
		elapsed := now - at(timed[start])
		if elapsed < time.Millisecond {
			continue
		}
		if bps := int64(float64(total*8) / elapsed.Seconds()); !found || bps > peak {
			peak, found = bps, true
		}
	}
	return peak, found
}
