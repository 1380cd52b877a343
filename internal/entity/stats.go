package entity

import "time"

// RunStats summarizes one orchestrator run.
type RunStats struct {
	RunID      string         `json:"run_id"`
	Total      int            `json:"total"`
	Success    int            `json:"success"`
	Failed     int            `json:"failed"`
	Deferred   int            `json:"deferred"`
	Elapsed    time.Duration  `json:"elapsed_ns"`
	PerSecond  float64        `json:"profiles_per_second"`
	ErrorKinds map[string]int `json:"errors"`
}

// ProgressSnapshot is the advisory progress file payload, rewritten after
// every batch. It is not authoritative state; the ledger is.
type ProgressSnapshot struct {
	RunID       string    `json:"run_id"`
	Index       int       `json:"index"`
	Total       int       `json:"total"`
	Completion  float64   `json:"completion_pct"`
	Success     int       `json:"success"`
	Failed      int       `json:"failed"`
	Deferred    int       `json:"deferred"`
	Workers     int       `json:"workers"`
	BatchSize   int       `json:"batch_size"`
	PerSecond   float64   `json:"profiles_per_second"`
	LastURL     string    `json:"last_url,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}
