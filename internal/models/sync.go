package models

import "time"

// Attempt records what happened with one candidate source URL during a sync.
type Attempt struct {
	URL      string `json:"url"`
	Status   int    `json:"status,omitempty"`
	Bytes    int    `json:"bytes"`
	Outcome  string `json:"outcome"` // "ok", "fetch_failed" or "parse_failed"
	Error    string `json:"error,omitempty"`
	Stage    string `json:"stage,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	// Tried lists the extraction strategies that ran against the document.
	Tried   []string `json:"tried,omitempty"`
	Preview string   `json:"preview,omitempty"`
}

// SyncReport is the diagnostic record of a sync run, returned with both
// successful and failed syncs so operators can spot source markup drift.
type SyncReport struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"` // "latest" or "date"
	Target     string    `json:"target,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Attempts   []Attempt `json:"attempts"`
	Draw       *Draw     `json:"draw,omitempty"`
	Upserted   bool      `json:"upserted"`
	Error      string    `json:"error,omitempty"`
}

// HealthStatus is the payload of the health endpoint.
type HealthStatus struct {
	Status   string      `json:"status"`
	Database string      `json:"database"`
	Uptime   string      `json:"uptime"`
	Version  string      `json:"version"`
	LastSync *SyncReport `json:"last_sync,omitempty"`
}
