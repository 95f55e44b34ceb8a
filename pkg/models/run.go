package models

import "time"

// RunStatus is the lifecycle state of a run. Transitions are forward-only:
// QUEUED -> RUNNING -> {COMPLETE, FAILED, CANCELLED}. CANCELLED is reachable
// directly from QUEUED via an explicit cancel request.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "QUEUED"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusComplete  RunStatus = "COMPLETE"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// Terminal reports whether no further transition is accepted from s.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusComplete, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Cancellable reports whether a cancel request is meaningful in state s.
func (s RunStatus) Cancellable() bool {
	return s == RunStatusQueued || s == RunStatusRunning
}

// CanTransition reports whether the state machine permits s -> to.
func (s RunStatus) CanTransition(to RunStatus) bool {
	if s == to {
		return false
	}

	switch s {
	case RunStatusQueued:
		return to == RunStatusRunning || to == RunStatusCancelled ||
			to == RunStatusFailed
	case RunStatusRunning:
		return to == RunStatusComplete || to == RunStatusFailed ||
			to == RunStatusCancelled
	default:
		return false
	}
}

// Run is one execution instance of a workflow. Status is owned by the
// execution engine; clients only observe it.
type Run struct {
	ID           string    `json:"id"`
	WorkflowID   string    `json:"workflow_id"`
	ExperimentID string    `json:"experiment_id"`
	WorkflowName string    `json:"workflow_name,omitempty"`
	Status       RunStatus `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Jobs         []*Job    `json:"jobs"`
}

// Clone returns a deep copy of the run, detaching the job list and every
// job's timestamps. The engine mutates only its own copy; the snapshot a
// caller was handed never changes underneath it.
func (r *Run) Clone() *Run {
	clone := *r
	clone.Jobs = make([]*Job, len(r.Jobs))

	for i, job := range r.Jobs {
		copied := *job

		if job.StartTime != nil {
			start := *job.StartTime
			copied.StartTime = &start
		}

		if job.EndTime != nil {
			end := *job.EndTime
			copied.EndTime = &end
		}

		clone.Jobs[i] = &copied
	}

	return &clone
}

// JobByID returns the job with the given id, if present.
func (r *Run) JobByID(id string) (*Job, bool) {
	for _, j := range r.Jobs {
		if j.ID == id {
			return j, true
		}
	}

	return nil, false
}

// AllJobsTerminal reports whether every job of the run reached a terminal
// status. A run is complete only once this holds.
func (r *Run) AllJobsTerminal() bool {
	for _, j := range r.Jobs {
		if !j.Status.Terminal() {
			return false
		}
	}

	return true
}
