package trace

import "time"

// Entry records how one anchor was evaluated during a matching run.
type Entry struct {
	Timestamp  time.Time         `json:"timestamp"`
	VehicleID  string            `json:"vehicle_id"`
	Mode       string            `json:"mode"`
	Anchor     string            `json:"anchor"`
	AnchorTime time.Time         `json:"anchor_time"`
	Candidates map[string]int    `json:"candidates"`
	Evaluated  int               `json:"evaluated"`
	Rejected   map[string]int    `json:"rejected,omitempty"`
	Matched    bool              `json:"matched"`
	Score      float64           `json:"score,omitempty"`
	Members    map[string]string `json:"members,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}
