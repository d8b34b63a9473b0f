// Package scenario runs the scripted login flow for each (application,
// condition) pair and turns every iteration into an Outcome.
//
// One iteration walks the stages
//
//	Idle → SessionOpened → ConditionApplied → Navigated → Authenticated →
//	CollectorStopped → AuditComplete → Written → Closed
//
// and always reaches Closed once a page was opened, whichever stage failed.
package scenario

// Stage is a step of one scenario iteration.
type Stage int

const (
	StageIdle Stage = iota
	StageSessionOpened
	StageConditionApplied
	StageNavigated
	StageAuthenticated
	StageCollectorStopped
	StageAuditComplete
	StageWritten
	StageClosed
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "Idle"
	case StageSessionOpened:
		return "SessionOpened"
	case StageConditionApplied:
		return "ConditionApplied"
	case StageNavigated:
		return "Navigated"
	case StageAuthenticated:
		return "Authenticated"
	case StageCollectorStopped:
		return "CollectorStopped"
	case StageAuditComplete:
		return "AuditComplete"
	case StageWritten:
		return "Written"
	case StageClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
