package model

import "time"

// SwitchEvent records one failover from one interface to another.
type SwitchEvent struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Forced bool      `json:"forced"` // active interface disabled/absent, threshold bypassed
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}
