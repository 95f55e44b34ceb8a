package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/expflow/expflow/pkg/models"
	"github.com/expflow/expflow/pkg/services"
)

// Dispatcher routes engine events to event-bound triggers: an active trigger
// whose type matches the event and whose conditions all hold starts its
// workflow. It implements EventSink.
type Dispatcher struct {
	logger   *slog.Logger
	triggers *services.Trigger
	runs     *services.Run

	events chan Event
	done   chan struct{}

	mu      sync.Mutex
	started map[string]struct{}
}

// NewDispatcher creates a dispatcher. Call Start before publishing events.
func NewDispatcher(logger *slog.Logger, triggers *services.Trigger, runs *services.Run) *Dispatcher {
	return &Dispatcher{
		logger:   logger.With("module", "dispatcher"),
		triggers: triggers,
		runs:     runs,
		events:   make(chan Event, 64),
		started:  make(map[string]struct{}),
	}
}

// Publish enqueues an event for matching. Never blocks the executor: events
// are dropped when the queue is full.
func (d *Dispatcher) Publish(event Event) {
	select {
	case d.events <- event:
	default:
		d.logger.Warn("Event queue full, dropping event", "type", event.Type)
	}
}

// Start consumes events until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-d.events:
				d.dispatch(ctx, event)
			}
		}
	}()
}

// Wait blocks until the dispatcher loop has stopped.
func (d *Dispatcher) Wait() {
	if d.done != nil {
		<-d.done
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, event Event) {
	// Events emitted by a run the dispatcher itself started do not fire
	// triggers again, so a trigger chain cannot loop forever.
	if runID, ok := event.Params["run_id"].(string); ok {
		d.mu.Lock()
		_, triggered := d.started[runID]
		d.mu.Unlock()

		if triggered {
			return
		}
	}

	triggers, err := d.triggers.List(ctx, "")
	if err != nil {
		d.logger.Error("Failed to list triggers", "error", err)

		return
	}

	for _, trigger := range triggers {
		if !trigger.Enabled() || trigger.Type != event.Type {
			continue
		}

		matched, err := models.MatchAll(trigger.Conditions, event.Params)
		if err != nil {
			d.logger.Warn("Trigger condition evaluation failed",
				"trigger_id", trigger.ID, "error", err)

			continue
		}

		if !matched {
			continue
		}

		d.fire(ctx, trigger, event)
	}
}

func (d *Dispatcher) fire(ctx context.Context, trigger *models.Trigger, event Event) {
	logger := d.logger.With("trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID)
	logger.Info("Trigger matched, starting workflow", "event", event.Type)

	run, err := d.runs.Start(ctx, trigger.WorkflowID)
	if err != nil {
		logger.Error("Failed to start triggered run", "error", err)

		return
	}

	d.mu.Lock()
	d.started[run.ID] = struct{}{}
	d.mu.Unlock()

	if err := d.triggers.RecordRun(ctx, trigger.ID, run); err != nil {
		logger.Error("Failed to record triggered run", "error", err)
	}
}
