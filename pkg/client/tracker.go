package client

import (
	"context"
	"sync"
	"time"

	"github.com/expflow/expflow/pkg/models"
)

// DefaultPollInterval is how often the tracker re-fetches run state.
const DefaultPollInterval = 2 * time.Second

// TrackerOption configures a RunTracker.
type TrackerOption func(*RunTracker)

// WithPollInterval overrides the polling interval.
func WithPollInterval(interval time.Duration) TrackerOption {
	return func(t *RunTracker) { t.interval = interval }
}

// RunTracker polls the run history of one experiment and the detail of the
// selected run. The server is ground truth on every poll; the tracker never
// synthesizes a status. The experiment is fixed at construction: switching
// experiments means cancelling this tracker and starting a new one, so a
// stale poll can never bleed into the new context.
//
// Selection policy: nil while the list is empty; when a non-empty list first
// arrives the newest run is selected automatically; an explicit Select
// sticks until that run disappears from the list.
type RunTracker struct {
	client       *Client
	experimentID string
	interval     time.Duration

	mu       sync.Mutex
	runs     []*models.Run
	selected *models.Run
	lastErr  error

	done chan struct{}
}

// NewRunTracker creates a tracker for one experiment.
func NewRunTracker(c *Client, experimentID string, opts ...TrackerOption) *RunTracker {
	t := &RunTracker{
		client:       c,
		experimentID: experimentID,
		interval:     DefaultPollInterval,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Start polls until ctx is cancelled. The first poll happens immediately.
func (t *RunTracker) Start(ctx context.Context) {
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		t.Poll(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Poll(ctx)
			}
		}
	}()
}

// Wait blocks until the polling loop has stopped.
func (t *RunTracker) Wait() {
	if t.done != nil {
		<-t.done
	}
}

// Poll fetches the run list and the selected run's detail once. Errors are
// retained for Err; the previous state stays visible rather than flickering
// to empty on a transient failure.
func (t *RunTracker) Poll(ctx context.Context) {
	runs, err := t.client.ListRuns(ctx, t.experimentID)
	if err != nil {
		t.mu.Lock()
		t.lastErr = err
		t.mu.Unlock()

		return
	}

	t.mu.Lock()
	t.runs = runs
	t.lastErr = nil
	t.reselectLocked()
	selectedID := ""

	if t.selected != nil {
		selectedID = t.selected.ID
	}
	t.mu.Unlock()

	if selectedID == "" {
		return
	}

	detail, err := t.client.GetRun(ctx, selectedID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.lastErr = err

		return
	}

	// Only apply if the selection did not change underneath the fetch.
	if t.selected != nil && t.selected.ID == detail.ID {
		t.selected = detail
	}
}

// reselectLocked applies the selection policy against the current list.
func (t *RunTracker) reselectLocked() {
	if len(t.runs) == 0 {
		t.selected = nil

		return
	}

	if t.selected != nil {
		for _, run := range t.runs {
			if run.ID == t.selected.ID {
				return
			}
		}
	}

	t.selected = t.runs[0]
}

// Runs returns the last fetched run list.
func (t *RunTracker) Runs() []*models.Run {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*models.Run, len(t.runs))
	copy(out, t.runs)

	return out
}

// Selected returns the currently selected run, or nil when the list is
// empty.
func (t *RunTracker) Selected() *models.Run {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.selected
}

// Select picks a run from the current list by id. Unknown ids are ignored.
func (t *RunTracker) Select(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, run := range t.runs {
		if run.ID == runID {
			t.selected = run

			return
		}
	}
}

// Err returns the error of the most recent poll, nil after a successful one.
func (t *RunTracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lastErr
}

// Cancel requests cancellation of the selected run. A no-op when nothing is
// selected or the selected run is already terminal.
func (t *RunTracker) Cancel(ctx context.Context) error {
	t.mu.Lock()
	selected := t.selected
	t.mu.Unlock()

	if selected == nil || selected.Status.Terminal() {
		return nil
	}

	return t.client.CancelRun(ctx, selected.ID)
}
