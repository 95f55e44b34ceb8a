package models

import (
	"encoding/json"
	"time"
)

// Job is the execution record of a single node within a run. Jobs share the
// run status vocabulary; each job progresses independently.
//
// Field names follow the run-detail wire contract (jobID, taskName, ...).
type Job struct {
	ID        string     `json:"jobID"`
	NodeID    string     `json:"node_id"`
	TaskName  string     `json:"taskName"`
	Status    RunStatus  `json:"status"`
	StartTime *time.Time `json:"jobStartTime,omitempty"`
	EndTime   *time.Time `json:"jobEndTime,omitempty"`
}

// Score is one entry of a job's score list.
type Score struct {
	Type  string  `json:"type"`
	Score float64 `json:"score"`
}

// JobData is the payload of a job detail response. Score carries a
// JSON-encoded array of Score entries; use Scores to decode it.
type JobData struct {
	StartTime         string `json:"start_time,omitempty"`
	EndTime           string `json:"end_time,omitempty"`
	Evaluator         string `json:"evaluator,omitempty"`
	ModelName         string `json:"model_name,omitempty"`
	Score             string `json:"score,omitempty"`
	CompletionStatus  string `json:"completion_status,omitempty"`
	CompletionDetails string `json:"completion_details,omitempty"`
}

// JobDetail is the full inspection view of a single job.
type JobDetail struct {
	ID      string    `json:"id"`
	RunID   string    `json:"run_id"`
	Status  RunStatus `json:"status"`
	JobData JobData   `json:"job_data"`
}

// Scores decodes the JSON-encoded score field. A malformed document yields
// an empty list, never an error: score is display metadata and must not take
// the whole job view down with it.
func (d JobData) Scores() []Score {
	if d.Score == "" {
		return []Score{}
	}

	var scores []Score
	if err := json.Unmarshal([]byte(d.Score), &scores); err != nil {
		return []Score{}
	}

	return scores
}
