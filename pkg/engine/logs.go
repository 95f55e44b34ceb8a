package engine

import "sync"

// LogBuffer retains the full log history of one job and fans new lines out
// to live subscribers. Re-opening an inspector re-subscribes from the start
// of retained history.
type LogBuffer struct {
	mu     sync.Mutex
	lines  []string
	subs   map[chan string]struct{}
	closed bool
}

func NewLogBuffer() *LogBuffer {
	return &LogBuffer{subs: make(map[chan string]struct{})}
}

// Append records a line and delivers it to every live subscriber. Slow
// subscribers drop lines rather than block the executor.
func (b *LogBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.lines = append(b.lines, line)

	for ch := range b.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Subscribe returns the retained history plus a channel of lines appended
// afterwards. The channel is closed when the job finishes or cancel is
// called. cancel is safe to call more than once.
func (b *LogBuffer) Subscribe() (history []string, lines <-chan string, cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	history = make([]string, len(b.lines))
	copy(history, b.lines)

	ch := make(chan string, 256)

	if b.closed {
		close(ch)

		return history, ch, func() {}
	}

	b.subs[ch] = struct{}{}

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}

	return history, ch, cancel
}

// Close marks the job terminal: history stays readable, live subscriptions
// end.
func (b *LogBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// Lines returns a copy of the retained history.
func (b *LogBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, len(b.lines))
	copy(out, b.lines)

	return out
}

// LogStore holds the log buffers of all jobs seen by the engine.
type LogStore struct {
	mu      sync.RWMutex
	buffers map[string]*LogBuffer
}

func NewLogStore() *LogStore {
	return &LogStore{buffers: make(map[string]*LogBuffer)}
}

// Buffer returns the job's buffer, creating it on first use.
func (s *LogStore) Buffer(jobID string) *LogBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()

	buffer, ok := s.buffers[jobID]
	if !ok {
		buffer = NewLogBuffer()
		s.buffers[jobID] = buffer
	}

	return buffer
}

// Get returns the job's buffer if the engine has seen the job.
func (s *LogStore) Get(jobID string) (*LogBuffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buffer, ok := s.buffers[jobID]

	return buffer, ok
}
