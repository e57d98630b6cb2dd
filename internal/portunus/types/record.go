package types

import (
	"fmt"
	"strings"
	"time"
)

const (
	// TimestampLayout is the durable log's timestamp column.
	TimestampLayout = "2006-01-02 15:04:05"
	// ClockLayout is the status snapshot's clock field.
	ClockLayout = "01/02/2006 15:04:05"
)

// MotionUID fills the uid column for motion records.
const MotionUID = "motion"

// Record is one row of the event log.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	UID       string    `json:"uid"`
	Label     string    `json:"label"`
	Outcome   string    `json:"outcome"`
	State     string    `json:"state,omitempty"`
}

// NewRecord builds the log record for a decision. Callers must check
// d.Recorded() first.
func NewRecord(d Decision, loc *time.Location) Record {
	r := Record{
		Timestamp: d.Event.At.In(loc).Round(0),
		Outcome:   d.Outcome(),
		State:     d.State,
	}
	if d.Event.Kind == EventTag {
		r.UID = d.Event.UID
		r.Label = d.Label
	} else {
		r.UID = MotionUID
		r.Label = r.Outcome
	}
	return r
}

// Summary is the short description shown next to the timestamp in the
// status snapshot.
func (r Record) Summary() string {
	if r.UID == MotionUID {
		return r.Outcome
	}
	s := r.Label
	if r.State != "" {
		s += " - " + r.State
	}
	return s
}

// Header returns the durable log header columns.
func Header(withState bool) []string {
	if withState {
		return []string{"timestamp", "uid", "username", "state"}
	}
	return []string{"timestamp", "uid", "username"}
}

// Row renders r in the durable log column order.
func (r Record) Row(withState bool) []string {
	row := []string{r.Timestamp.Format(TimestampLayout), r.UID, r.Label}
	if withState {
		row = append(row, r.State)
	}
	return row
}

// Line joins Row with commas. Fields are not escaped; identities and
// labels are assumed comma-free.
func (r Record) Line(withState bool) string {
	return strings.Join(r.Row(withState), ",")
}

// ParseRow reverses Row. The outcome is not a column of its own; it is
// recovered from the uid and label.
func ParseRow(fields []string, loc *time.Location) (Record, error) {
	if len(fields) < 3 {
		return Record{}, fmt.Errorf("log row has %d fields, want at least 3", len(fields))
	}
	ts, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(fields[0]), loc)
	if err != nil {
		return Record{}, fmt.Errorf("log row timestamp: %w", err)
	}
	r := Record{
		Timestamp: ts,
		UID:       strings.TrimSpace(fields[1]),
		Label:     strings.TrimSpace(fields[2]),
	}
	if len(fields) > 3 {
		r.State = strings.TrimSpace(fields[3])
	}
	switch {
	case r.UID == MotionUID:
		r.Outcome = r.Label
	case r.Label == LabelUnauthorized:
		r.Outcome = OutcomeDenied
	default:
		r.Outcome = OutcomeGranted
	}
	return r, nil
}
