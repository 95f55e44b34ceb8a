package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/expflow/expflow/pkg/models"
	"github.com/expflow/expflow/pkg/services"
)

// TriggerTypeSchedule is the trigger type the scheduler owns. Its cron
// expression lives in a condition with parameter "cron".
const TriggerTypeSchedule = "schedule"

const syncInterval = 30 * time.Second

// Scheduler starts workflows on cron schedules. Trigger configuration is
// re-read periodically, so enabling, disabling or rebinding a schedule
// trigger takes effect without a restart.
type Scheduler struct {
	logger   *slog.Logger
	triggers *services.Trigger
	runs     *services.Run

	cron    *cron.Cron
	entries map[string]cron.EntryID
	specs   map[string]string
	done    chan struct{}
}

// NewScheduler creates a scheduler. Call Start to begin scheduling.
func NewScheduler(logger *slog.Logger, triggers *services.Trigger, runs *services.Run) *Scheduler {
	return &Scheduler{
		logger:   logger.With("module", "scheduler"),
		triggers: triggers,
		runs:     runs,
		cron:     cron.New(),
		entries:  make(map[string]cron.EntryID),
		specs:    make(map[string]string),
	}
}

// ScheduleSpec extracts the cron expression of a schedule trigger. Returns
// false when the trigger carries none.
func ScheduleSpec(trigger *models.Trigger) (string, bool) {
	for _, condition := range trigger.Conditions {
		if condition.Parameter != "cron" {
			continue
		}

		spec, ok := condition.Value.(string)

		return spec, ok && spec != ""
	}

	return "", false
}

// ValidateScheduleSpec reports whether spec is a parseable standard cron
// expression.
func ValidateScheduleSpec(spec string) error {
	_, err := cron.ParseStandard(spec)

	return err
}

// Start runs the scheduler until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		defer s.cron.Stop()

		ticker := time.NewTicker(syncInterval)
		defer ticker.Stop()

		s.sync(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sync(ctx)
			}
		}
	}()
}

// Wait blocks until the scheduler loop has stopped.
func (s *Scheduler) Wait() {
	if s.done != nil {
		<-s.done
	}
}

// sync reconciles cron entries with the current trigger configuration.
func (s *Scheduler) sync(ctx context.Context) {
	triggers, err := s.triggers.List(ctx, "")
	if err != nil {
		s.logger.Error("Failed to list triggers", "error", err)

		return
	}

	seen := make(map[string]struct{})

	for _, trigger := range triggers {
		if trigger.Type != TriggerTypeSchedule || !trigger.Enabled() {
			continue
		}

		spec, ok := ScheduleSpec(trigger)
		if !ok {
			s.logger.Warn("Schedule trigger has no cron expression", "trigger_id", trigger.ID)

			continue
		}

		seen[trigger.ID] = struct{}{}

		if s.specs[trigger.ID] == spec {
			continue
		}

		s.remove(trigger.ID)
		s.add(trigger.ID, spec)
	}

	for triggerID := range s.entries {
		if _, ok := seen[triggerID]; !ok {
			s.remove(triggerID)
		}
	}
}

func (s *Scheduler) add(triggerID, spec string) {
	entryID, err := s.cron.AddFunc(spec, func() {
		s.fire(triggerID)
	})
	if err != nil {
		s.logger.Error("Invalid cron expression", "trigger_id", triggerID, "spec", spec, "error", err)

		return
	}

	s.entries[triggerID] = entryID
	s.specs[triggerID] = spec
	s.logger.Info("Scheduled trigger", "trigger_id", triggerID, "spec", spec)
}

func (s *Scheduler) remove(triggerID string) {
	if entryID, ok := s.entries[triggerID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, triggerID)
		delete(s.specs, triggerID)
	}
}

func (s *Scheduler) fire(triggerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Re-read at fire time: the trigger may have been disabled since the
	// last sync.
	trigger, err := s.triggers.Get(ctx, triggerID)
	if err != nil || !trigger.Enabled() {
		return
	}

	logger := s.logger.With("trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID)
	logger.Info("Schedule fired, starting workflow")

	run, err := s.runs.Start(ctx, trigger.WorkflowID)
	if err != nil {
		logger.Error("Failed to start scheduled run", "error", err)

		return
	}

	if err := s.triggers.RecordRun(ctx, trigger.ID, run); err != nil {
		logger.Error("Failed to record scheduled run", "error", err)
	}
}
