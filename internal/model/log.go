package model

import "time"

// EventLogEntry is one line of the rolling device event log.
type EventLogEntry struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Action  string    `json:"action,omitempty"`
	Message string    `json:"message"`
}
