package monitoring

import (
	"sort"
	"sync"
	"time"
)

// JobState summarises the recent runs of one background job.
type JobState struct {
	Job                 string    `json:"job"`
	TotalRuns           uint64    `json:"total_runs"`
	ConsecutiveFailures uint64    `json:"consecutive_failures"`
	LastRunAt           time.Time `json:"last_run_at"`
	LastError           string    `json:"last_error,omitempty"`
}

// JobTracker records background job outcomes for the maintenance health probe.
type JobTracker struct {
	mu   sync.Mutex
	jobs map[string]*JobState
}

func NewJobTracker() *JobTracker {
	return &JobTracker{jobs: make(map[string]*JobState)}
}

// Register makes a job known before its first run so a probe can tell it is pending.
func (t *JobTracker) Register(job string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[job]; !ok {
		t.jobs[job] = &JobState{Job: job}
	}
}

// Record stores the outcome of one run finished at at.
func (t *JobTracker) Record(job string, err error, at time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.jobs[job]
	if !ok {
		state = &JobState{Job: job}
		t.jobs[job] = state
	}
	state.TotalRuns++
	state.LastRunAt = at
	if err != nil {
		state.ConsecutiveFailures++
		state.LastError = err.Error()
		return
	}
	state.ConsecutiveFailures = 0
	state.LastError = ""
}

// Snapshot returns a copy of every job state ordered by name.
func (t *JobTracker) Snapshot() []JobState {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	states := make([]JobState, 0, len(t.jobs))
	for _, state := range t.jobs {
		states = append(states, *state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Job < states[j].Job })
	return states
}
