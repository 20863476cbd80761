package learning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Defaults for Tracker.
const (
	DefaultSaveEvery                = 10
	DefaultMinExecutionsForLearning = 5
)

// Tracker owns the in-memory performance metrics and their persistence.
type Tracker struct {
	mu             sync.Mutex
	repo           Repository
	metrics        map[string]*AgentPerformanceMetrics
	dirty          map[string]bool
	saveEvery      int
	sinceSave      int
	minForLearning int
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithSaveEvery persists after every n recorded executions.
func WithSaveEvery(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.saveEvery = n
		}
	}
}

// WithMinExecutions sets how much history enables learned selection.
func WithMinExecutions(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.minForLearning = n
		}
	}
}

// NewTracker loads existing metrics from repo and returns a tracker that
// records new executions on top of them.
// A nil repo keeps history in memory for the life of the process.
// Metrics are written back every SaveEvery recorded executions (see
// WithSaveEvery) and on Close; callers must Close the tracker to persist the
// tail of a run.
func NewTracker(ctx context.Context, repo Repository, opts ...TrackerOption) (*Tracker, error) {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	t := &Tracker{
		repo:           repo,
		dirty:          make(map[string]bool),
		saveEvery:      DefaultSaveEvery,
		minForLearning: DefaultMinExecutionsForLearning,
	}
	for _, opt := range opts {
		opt(t)
	}

	loaded, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	t.metrics = loaded
	return t, nil
}

// Record folds e into the agent's metrics, appends it to the execution log
// when the repository keeps one, and persists every saveEvery records.
func (t *Tracker) Record(ctx context.Context, e Execution) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	t.mu.Lock()
	m, ok := t.metrics[e.Agent]
	if !ok {
		m = NewAgentPerformanceMetrics(e.Agent)
		t.metrics[e.Agent] = m
	}
	m.Update(e)
	t.dirty[e.Agent] = true
	t.sinceSave++
	due := t.sinceSave >= t.saveEvery
	t.mu.Unlock()

	var errs []error
	if rec, ok := t.repo.(ExecutionRecorder); ok {
		if err := rec.RecordExecution(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	if due {
		if err := t.Save(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("record execution for %s: %w", e.Agent, errors.Join(errs...))
	}
	return nil
}

// Save persists every agent changed since the last save.
func (t *Tracker) Save(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.dirty) == 0 {
		return nil
	}
	batch := make(map[string]*AgentPerformanceMetrics, len(t.dirty))
	for name := range t.dirty {
		batch[name] = t.metrics[name].Clone()
	}
	if err := t.repo.Save(ctx, batch); err != nil {
		return err
	}
	t.dirty = make(map[string]bool)
	t.sinceSave = 0
	return nil
}

// Close saves pending changes and closes the repository.
func (t *Tracker) Close(ctx context.Context) error {
	saveErr := t.Save(ctx)
	closeErr := t.repo.Close()
	if saveErr != nil {
		return saveErr
	}
	return closeErr
}

// Metrics returns a copy of agent's metrics.
func (t *Tracker) Metrics(agent string) (*AgentPerformanceMetrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.metrics[agent]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// All returns copies of every agent's metrics ordered by name.
func (t *Tracker) All() []*AgentPerformanceMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*AgentPerformanceMetrics, 0, len(t.metrics))
	for _, m := range t.metrics {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentName < out[j].AgentName })
	return out
}

// Score returns the agent's selection score, neutral without history.
func (t *Tracker) Score(agent string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics[agent].Score()
}

// TotalExecutions sums executions over all agents.
func (t *Tracker) TotalExecutions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, m := range t.metrics {
		total += m.TotalExecutions
	}
	return total
}

// HasSufficientHistory reports whether learned selection should be used.
func (t *Tracker) HasSufficientHistory() bool {
	return t.TotalExecutions() >= t.minForLearning
}

// Repository returns the backing repository.
func (t *Tracker) Repository() Repository {
	return t.repo
}
