package types

// Snapshot is the status query response.
type Snapshot struct {
	Device      string            `json:"device"`
	Clock       string            `json:"clock"`
	Business    string            `json:"business"` // "Yes" | "No"
	Mode        string            `json:"mode"`
	Loop        string            `json:"loop"` // "Idle" | "Active" | "Stopped"
	Events      [][2]string       `json:"events"`
	Overrides   Overrides         `json:"overrides"`
	AlarmActive bool              `json:"alarm_active"`
	Failures    map[string]uint64 `json:"failures"`
}

type Overrides struct {
	ForceAfterHours   bool `json:"force_after_hours"`
	DisableAfterHours bool `json:"disable_after_hours"`
}
