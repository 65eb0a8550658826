package app

import "time"

// RunStatus is the terminal state of a run.
type RunStatus string

// Run outcomes.
const (
	StatusSucceeded RunStatus = "succeeded"
	StatusNoResults RunStatus = "no_results"
	StatusFailed    RunStatus = "failed"
)

// RunSummary describes a finished run. It is published as JSON when a topic is configured.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	Keyword      string    `json:"keyword"`
	Status       RunStatus `json:"status"`
	Entries      int       `json:"entries"`
	Enriched     int       `json:"enriched"`
	Stored       int       `json:"stored,omitempty"`
	OutputPath   string    `json:"output_path,omitempty"`
	OutputSHA256 string    `json:"output_sha256,omitempty"`
	OutputURI    string    `json:"output_uri,omitempty"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Stage names the pipeline step a run is in.
type Stage string

// Pipeline stages.
const (
	StageIdle      Stage = "idle"
	StageStarting  Stage = "starting"
	StageSearching Stage = "searching"
	StageEnriching Stage = "enriching"
	StageSaving    Stage = "saving"
	StageDone      Stage = "done"
)

// Status is the live view served by the operator listener.
type Status struct {
	RunID   string `json:"run_id,omitempty"`
	Keyword string `json:"keyword,omitempty"`
	Stage   Stage  `json:"stage"`
	Entries int    `json:"entries"`
}

// Status returns a snapshot of the current run.
func (a *App) Status() any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

func (a *App) setStage(runID, keyword string, stage Stage, entries int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = Status{RunID: runID, Keyword: keyword, Stage: stage, Entries: entries}
}
