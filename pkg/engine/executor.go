// Package engine is the stand-in execution engine: it drives run and job
// status transitions, emits job log output, and fires the events triggers
// react to. The real training/eval machinery lives outside this codebase;
// clients only ever observe the engine through polling.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/expflow/expflow/pkg/models"
	"github.com/expflow/expflow/pkg/otelhelper"
	"github.com/expflow/expflow/pkg/persistence"
)

// Event is an engine occurrence triggers can bind to (run_start,
// train_start, run_complete, ...).
type Event struct {
	Type   string
	Params map[string]any
}

// EventSink receives engine events. The trigger dispatcher implements it.
type EventSink interface {
	Publish(event Event)
}

// Option configures an Executor.
type Option func(*Executor)

// WithStepDelay overrides the simulated per-step work duration.
func WithStepDelay(d time.Duration) Option {
	return func(e *Executor) { e.stepDelay = d }
}

// WithEventSink attaches an event sink.
func WithEventSink(sink EventSink) Option {
	return func(e *Executor) { e.sink = sink }
}

// SetEventSink attaches the sink after construction, for wiring where the
// sink itself depends on services built around this executor. Must be
// called before the first Launch.
func (e *Executor) SetEventSink(sink EventSink) {
	e.sink = sink
}

// WithTracer attaches a tracer for run/job spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

// Executor runs workflows: one goroutine per run, jobs executed in the
// topological order they were materialised in. It is the single writer of
// run status; the API layer only reads.
type Executor struct {
	logger    *slog.Logger
	runs      persistence.RunRepository
	logs      *LogStore
	tracer    trace.Tracer
	sink      EventSink
	stepDelay time.Duration

	mu      sync.Mutex
	active  map[string]context.CancelFunc
	jobData map[string]models.JobData

	wg sync.WaitGroup
}

// NewExecutor creates an executor persisting transitions through the given
// run repository.
func NewExecutor(logger *slog.Logger, runs persistence.RunRepository, opts ...Option) *Executor {
	e := &Executor{
		logger:    logger.With("module", "executor"),
		runs:      runs,
		logs:      NewLogStore(),
		tracer:    noop.NewTracerProvider().Tracer("expflow"),
		stepDelay: 200 * time.Millisecond,
		active:    make(map[string]context.CancelFunc),
		jobData:   make(map[string]models.JobData),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Launch starts executing the run in the background. The executor works on
// its own copy of the run; the caller's snapshot stays untouched while the
// run progresses.
func (e *Executor) Launch(run *models.Run, workflow *models.Workflow) {
	run = run.Clone()

	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.active[run.ID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.active, run.ID)
			e.mu.Unlock()
			cancel()
		}()

		e.execute(ctx, run, workflow)
	}()
}

// Cancel requests cancellation of a live run. Returns false when the run is
// not executing here.
func (e *Executor) Cancel(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	cancel, ok := e.active[runID]
	if !ok {
		return false
	}

	cancel()

	return true
}

// JobData returns the recorded engine-side detail of a job.
func (e *Executor) JobData(jobID string) (models.JobData, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, ok := e.jobData[jobID]

	return data, ok
}

// Logs returns the log buffer of a job the engine has seen.
func (e *Executor) Logs(jobID string) (*LogBuffer, bool) {
	return e.logs.Get(jobID)
}

// Wait blocks until all launched runs have finished. Used on shutdown and
// in tests.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) execute(ctx context.Context, run *models.Run, workflow *models.Workflow) {
	logger := e.logger.With("run_id", run.ID, "workflow_id", workflow.ID)

	spanCtx, span := otelhelper.StartSpan(ctx, e.tracer, "run.execute",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.ExperimentIDKey, run.ExperimentID),
	)
	defer span.End()

	logger.Info("Starting run execution", "jobs", len(run.Jobs))

	e.transitionRun(run, models.RunStatusRunning)
	e.publish(Event{Type: "run_start", Params: map[string]any{
		"run_id":        run.ID,
		"workflow_id":   workflow.ID,
		"experiment_id": run.ExperimentID,
	}})

	finalStatus := models.RunStatusComplete

	for _, job := range run.Jobs {
		node, ok := workflow.NodeByID(job.NodeID)
		if !ok {
			// Node deleted between start and execution: fail the job, not
			// the process.
			e.failJob(run, job, fmt.Errorf("node %s no longer exists", job.NodeID))

			finalStatus = models.RunStatusFailed

			break
		}

		select {
		case <-spanCtx.Done():
			finalStatus = models.RunStatusCancelled
		default:
		}

		if finalStatus == models.RunStatusCancelled {
			break
		}

		if err := e.executeJob(spanCtx, run, job, node); err != nil {
			if spanCtx.Err() != nil {
				finalStatus = models.RunStatusCancelled
			} else {
				otelhelper.SetError(span, err, attribute.String(otelhelper.JobIDKey, job.ID))
				finalStatus = models.RunStatusFailed
			}

			break
		}
	}

	if finalStatus == models.RunStatusCancelled {
		e.cancelRemainingJobs(run)
	}

	e.transitionRun(run, finalStatus)
	e.publish(Event{Type: "run_complete", Params: map[string]any{
		"run_id":        run.ID,
		"workflow_id":   workflow.ID,
		"experiment_id": run.ExperimentID,
		"status":        string(finalStatus),
	}})

	logger.Info("Run execution finished", "status", finalStatus)
}

func (e *Executor) executeJob(ctx context.Context, run *models.Run, job *models.Job, node *models.Node) error {
	jobCtx, span := otelhelper.StartSpan(ctx, e.tracer, "job.execute",
		attribute.String(otelhelper.JobIDKey, job.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	start := time.Now().UTC()
	job.Status = models.RunStatusRunning
	job.StartTime = &start
	e.persistRun(run)

	e.publishNodeEvent(run, node, "start")

	buffer := e.logs.Buffer(job.ID)
	defer buffer.Close()

	data, err := e.runNode(jobCtx, node, buffer)

	end := time.Now().UTC()
	job.EndTime = &end

	if err != nil {
		if jobCtx.Err() != nil {
			job.Status = models.RunStatusCancelled
			e.persistRun(run)

			return err
		}

		job.Status = models.RunStatusFailed
		buffer.Append("error: " + err.Error())
		e.recordJobData(job.ID, data, "failed", err.Error(), start, end)
		e.persistRun(run)
		e.publishNodeEvent(run, node, "failed")

		return err
	}

	job.Status = models.RunStatusComplete
	e.recordJobData(job.ID, data, "success", "", start, end)
	e.persistRun(run)
	e.publishNodeEvent(run, node, "complete")

	return nil
}

func (e *Executor) failJob(run *models.Run, job *models.Job, err error) {
	now := time.Now().UTC()
	job.Status = models.RunStatusFailed
	job.StartTime = &now
	job.EndTime = &now

	buffer := e.logs.Buffer(job.ID)
	buffer.Append("error: " + err.Error())
	buffer.Close()

	e.persistRun(run)
}

func (e *Executor) cancelRemainingJobs(run *models.Run) {
	now := time.Now().UTC()

	for _, job := range run.Jobs {
		if job.Status.Terminal() {
			continue
		}

		job.Status = models.RunStatusCancelled
		job.EndTime = &now

		if buffer, ok := e.logs.Get(job.ID); ok {
			buffer.Append("job cancelled")
			buffer.Close()
		}
	}
}

func (e *Executor) transitionRun(run *models.Run, to models.RunStatus) {
	if !run.Status.CanTransition(to) {
		return
	}

	run.Status = to
	run.UpdatedAt = time.Now().UTC()
	e.persistRun(run)
}

func (e *Executor) persistRun(run *models.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.runs.Save(ctx, run); err != nil {
		e.logger.Error("Failed to persist run state", "run_id", run.ID, "error", err)
	}
}

func (e *Executor) recordJobData(jobID string, data models.JobData, status, details string, start, end time.Time) {
	data.StartTime = start.Format("2006-01-02 15:04:05")
	data.EndTime = end.Format("2006-01-02 15:04:05")
	data.CompletionStatus = status
	data.CompletionDetails = details

	e.mu.Lock()
	e.jobData[jobID] = data
	e.mu.Unlock()
}

func (e *Executor) publish(event Event) {
	if e.sink != nil {
		e.sink.Publish(event)
	}
}

// publishNodeEvent emits the per-node lifecycle events triggers bind to,
// e.g. train_start, eval_complete, download_model_failed.
func (e *Executor) publishNodeEvent(run *models.Run, node *models.Node, phase string) {
	var kind string

	switch node.Type {
	case models.NodeTypeTrain:
		kind = "train"
	case models.NodeTypeEval:
		kind = "eval"
	case models.NodeTypeDownloadModel:
		kind = "download_model"
	default:
		kind = "task"
	}

	e.publish(Event{Type: kind + "_" + phase, Params: map[string]any{
		"run_id":        run.ID,
		"workflow_id":   run.WorkflowID,
		"experiment_id": run.ExperimentID,
		"node_id":       node.ID,
		"node_name":     node.Name,
		"event":         kind + "_" + phase,
	}})
}
