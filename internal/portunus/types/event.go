package types

import "time"

type EventKind int

const (
	EventMotion EventKind = iota + 1
	EventMotionCleared
	EventTag
)

func (k EventKind) String() string {
	switch k {
	case EventMotion:
		return "motion"
	case EventMotionCleared:
		return "motion_cleared"
	case EventTag:
		return "tag"
	default:
		return "unknown"
	}
}

// Event is one discrete observation from a sensor. At carries both wall
// and monotonic readings from time.Now.
type Event struct {
	Kind EventKind
	UID  string // upper-case hex; tag events only
	At   time.Time

	// FirstSighting is set by the tag sensor the first time a UID is seen
	// in this process. Log verbosity only.
	FirstSighting bool
}
