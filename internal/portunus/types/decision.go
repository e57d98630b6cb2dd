package types

type Action int

const (
	ActionIgnore Action = iota
	ActionGrant
	ActionDeny
	ActionAlert
	ActionSuppressed
	ActionAlarm
)

func (a Action) String() string {
	switch a {
	case ActionGrant:
		return "grant"
	case ActionDeny:
		return "deny"
	case ActionAlert:
		return "alert"
	case ActionSuppressed:
		return "suppressed"
	case ActionAlarm:
		return "alarm"
	default:
		return "ignore"
	}
}

// Outcome labels written to the durable log.
const (
	OutcomeGranted = "Granted"
	OutcomeDenied  = "Denied"
	OutcomeAlert   = "Alert"
	OutcomeMotion  = "Motion"
	OutcomeAlarm   = "Alarm"
)

const LabelUnauthorized = "Unauthorized"

// Toggle states.
const (
	StateCheckedOut = "Checked Out"
	StateCheckedIn  = "Checked In"
)

// Effective modes.
const (
	ModeBusiness   = "Business Mode"
	ModeAfterHours = "After-hours Mode"
)

// Decision is the evaluator's verdict for one event.
type Decision struct {
	Action Action
	Event  Event
	Label  string // identity label, or LabelUnauthorized on deny
	State  string // toggle state; empty unless the toggle policy is active
	Mode   string // effective mode for motion decisions
}

// Recorded reports whether the decision produces a log record.
func (d Decision) Recorded() bool { return d.Action != ActionIgnore }

func (d Decision) Outcome() string {
	switch d.Action {
	case ActionGrant:
		return OutcomeGranted
	case ActionDeny:
		return OutcomeDenied
	case ActionAlert:
		return OutcomeAlert
	case ActionSuppressed:
		return OutcomeMotion
	case ActionAlarm:
		return OutcomeAlarm
	default:
		return ""
	}
}
