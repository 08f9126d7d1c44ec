package model

import (
	"strconv"
	"time"
)

// PipelineLockKey is the fixed advisory lock key serializing scoring writes.
const PipelineLockKey int64 = 0x5355_5354_4149_4e01

// Run statuses.
const (
	RunStatusOK       = "ok"
	RunStatusDegraded = "degraded"
	RunStatusFailed   = "failed"
)

// Phase statuses recorded in run diagnostics.
const (
	PhaseOK       = "ok"
	PhaseSkipped  = "skipped"
	PhaseFailOpen = "fail_open"
	PhaseFailed   = "failed"
)

// PhaseReport is the outcome of one orchestrator phase.
type PhaseReport struct {
	Status     string         `json:"status"`
	DurationMS float64        `json:"duration_ms"`
	Detail     map[string]any `json:"detail,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// RunRecord is the audit row written once per orchestrated run.
type RunRecord struct {
	RunID         string                 `json:"run_id"`
	SeasonID      int                    `json:"season_id"`
	ModelVersion  int                    `json:"model_version"`
	ConfigHash    string                 `json:"config_hash"`
	ConfigSource  string                 `json:"config_source"`
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    time.Time              `json:"finished_at"`
	RowsIn        int                    `json:"rows_in"`
	RowsScored    int                    `json:"rows_scored"`
	RowsPersisted int                    `json:"rows_persisted"`
	Status        string                 `json:"status"`
	Diagnostics   map[string]PhaseReport `json:"diagnostics"`
}

// RetroScope identifies what a retro-recompute task must rescore.
type RetroScope struct {
	SeasonID       int        `json:"season_id"`
	ModelVersion   int        `json:"model_version"`
	WindowType     WindowType `json:"window_type"`
	PrevConfigHash string     `json:"prev_config_hash"`
	ConfigHash     string     `json:"config_hash"`
}

// Key returns a stable identity for de-duplicating tasks.
func (s RetroScope) Key() string {
	return string(s.WindowType) + "|" + s.ConfigHash + "|" + strconv.Itoa(s.SeasonID) + "|" + strconv.Itoa(s.ModelVersion)
}

// RetroTask asks for a scope to be recomputed after a config change.
type RetroTask struct {
	ID        string     `json:"id"`
	Reason    string     `json:"reason"`
	Scope     RetroScope `json:"scope"`
	CreatedAt time.Time  `json:"created_at"`
}
