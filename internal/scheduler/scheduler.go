// Package scheduler runs recurring and one-shot maintenance tasks on a
// polling loop. Task state transitions are driven by the loop goroutine
// only; external callers mutate tasks through Register and Cancel.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"etf-tracker/internal/errors"
	"etf-tracker/internal/logging"
)

// TaskState is the lifecycle state of a scheduled task.
type TaskState string

const (
	StatePending   TaskState = "pending"
	StateRunning   TaskState = "running"
	StateCompleted TaskState = "completed"
	StateFailed    TaskState = "failed"
	StateCancelled TaskState = "cancelled"
)

// TaskKind names the category of work a task performs.
type TaskKind string

const (
	KindBulkRefresh TaskKind = "bulk_refresh"
	KindDataUpdate  TaskKind = "data_update"
	KindAnalysis    TaskKind = "analysis"
	KindReport      TaskKind = "report"
	KindCleanup     TaskKind = "cleanup"
	KindCallback    TaskKind = "callback"
)

// Task is one unit of scheduled work. A zero Interval means one-shot; a
// positive Interval reschedules the task after every run. A positive
// MaxRuns caps total executions.
type Task struct {
	ID       string
	Kind     TaskKind
	Name     string
	State    TaskState
	Interval time.Duration
	MaxRuns  int

	NextRun   time.Time
	LastRun   time.Time
	RunCount  int
	LastError string

	// Run is the bound handler closure. It must be set before Register.
	Run func(ctx context.Context) error
}

// Scheduler owns the task table and the polling loop.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	pollInterval time.Duration
	log          zerolog.Logger
	now          func() time.Time
}

// New creates a stopped scheduler polling at the given interval.
func New(pollInterval time.Duration, logger zerolog.Logger) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Scheduler{
		tasks:        make(map[string]*Task),
		pollInterval: pollInterval,
		log:          logging.WithComponent(logger, "scheduler"),
		now:          time.Now,
	}
}

// Register inserts a task, or replaces the existing task with the same
// identifier. Replacement discards the old task's state and schedule.
func (s *Scheduler) Register(t *Task) error {
	if t.ID == "" || t.Run == nil {
		return errors.NewTaskError(t.ID, string(t.Kind), errors.ErrConfigInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		s.log.Warn().Str("task", t.ID).Msg("Replacing already registered task")
	}

	if t.State == "" {
		t.State = StatePending
	}
	if t.NextRun.IsZero() {
		t.NextRun = s.now()
	}
	s.tasks[t.ID] = t

	s.log.Info().
		Str("task", t.ID).
		Str("kind", string(t.Kind)).
		Time("next_run", t.NextRun).
		Msg("Task registered")
	return nil
}

// Cancel marks a pending task cancelled. Cancelled is terminal; running or
// finished tasks cannot be cancelled.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return errors.ErrTaskNotFound
	}
	if t.State != StatePending {
		return errors.NewTaskError(id, string(t.Kind), fmt.Errorf("cannot cancel task in state %s", t.State))
	}
	t.State = StateCancelled
	logging.LogTask(s.log, id, string(t.Kind), string(StateCancelled))
	return nil
}

// Remove deletes a task from the table entirely.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return errors.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

// Get returns a copy of one task.
func (s *Scheduler) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Tasks returns copies of all tasks sorted by next run time.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRun.Before(out[j].NextRun) })
	return out
}

// Start launches the polling loop. Starting a running scheduler is a no-op
// with a warning.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("Scheduler already running")
		return
	}
	s.running = true
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	s.stopCh = stopCh
	s.doneCh = doneCh
	s.mu.Unlock()

	s.log.Info().Dur("poll_interval", s.pollInterval).Msg("Scheduler started")
	go s.loop(stopCh, doneCh)
}

// Stop signals the loop and waits up to timeout for the current iteration
// to finish. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	select {
	case <-done:
		s.log.Info().Msg("Scheduler stopped")
		return nil
	case <-time.After(timeout):
		s.log.Warn().Msg("Scheduler stop timed out, task still running")
		return errors.ErrSchedulerStopped
	}
}

// Running reports whether the polling loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// loop owns the channels it was started with. A loop left behind by a
// timed-out Stop keeps observing those channels, so a later Start cannot
// revive it.
func (s *Scheduler) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		s.runDue(stopCh)

		select {
		case <-stopCh:
			return
		case <-time.After(s.pollInterval):
		}
	}
}

// runDue executes every pending task whose next run time has arrived,
// earliest first. One misbehaving task never takes down the loop.
func (s *Scheduler) runDue(stopCh chan struct{}) {
	now := s.now()

	s.mu.Lock()
	var due []*Task
	for _, t := range s.tasks {
		if t.State == StatePending && !t.NextRun.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRun.Before(due[j].NextRun) })
	s.mu.Unlock()

	for _, t := range due {
		select {
		case <-stopCh:
			return
		default:
		}
		s.execute(t)
	}
}

func (s *Scheduler) execute(t *Task) {
	s.mu.Lock()
	if t.State != StatePending {
		s.mu.Unlock()
		return
	}
	if t.MaxRuns > 0 && t.RunCount >= t.MaxRuns {
		t.State = StateCompleted
		s.mu.Unlock()
		s.log.Info().Str("task", t.ID).Int("runs", t.RunCount).Msg("Task reached run ceiling")
		return
	}
	t.State = StateRunning
	t.LastRun = s.now()
	t.RunCount++
	run := t.Run
	s.mu.Unlock()

	logging.LogTask(s.log, t.ID, string(t.Kind), string(StateRunning))
	start := time.Now()
	err := s.dispatch(t, run)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		t.State = StateFailed
		t.LastError = err.Error()
		s.log.Error().Err(err).Str("task", t.ID).Dur("duration", time.Since(start)).
			Msg("Task failed")
	} else {
		t.State = StateCompleted
		t.LastError = ""
		s.log.Info().Str("task", t.ID).Dur("duration", time.Since(start)).
			Msg("Task completed")
	}

	// Recurring tasks go back to pending for their next slot regardless of
	// this run's outcome.
	if t.Interval > 0 && (t.MaxRuns == 0 || t.RunCount < t.MaxRuns) {
		t.NextRun = s.now().Add(t.Interval)
		t.State = StatePending
	}
}

// dispatch invokes the handler, converting a panic into an error so the
// loop survives any task body.
func (s *Scheduler) dispatch(t *Task, run func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewTaskError(t.ID, string(t.Kind), fmt.Errorf("panic: %v", r))
		}
	}()
	return run(context.Background())
}

// StatusSummary aggregates the task table for the status surface.
type StatusSummary struct {
	Running   bool              `json:"running"`
	Total     int               `json:"total"`
	ByState   map[TaskState]int `json:"by_state"`
	NextTask  string            `json:"next_task,omitempty"`
	NextRunAt time.Time         `json:"next_run_at,omitempty"`
	Tasks     []TaskStatus      `json:"tasks"`
}

// TaskStatus is one row in the status summary.
type TaskStatus struct {
	ID        string    `json:"id"`
	Kind      TaskKind  `json:"kind"`
	State     TaskState `json:"state"`
	NextRun   time.Time `json:"next_run"`
	LastRun   time.Time `json:"last_run,omitempty"`
	RunCount  int       `json:"run_count"`
	LastError string    `json:"last_error,omitempty"`
}

// Status returns a snapshot of the scheduler and every task.
func (s *Scheduler) Status() StatusSummary {
	tasks := s.Tasks()

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	summary := StatusSummary{
		Running: running,
		Total:   len(tasks),
		ByState: make(map[TaskState]int),
	}
	for _, t := range tasks {
		summary.ByState[t.State]++
		summary.Tasks = append(summary.Tasks, TaskStatus{
			ID:        t.ID,
			Kind:      t.Kind,
			State:     t.State,
			NextRun:   t.NextRun,
			LastRun:   t.LastRun,
			RunCount:  t.RunCount,
			LastError: t.LastError,
		})
		if t.State == StatePending && (summary.NextTask == "" || t.NextRun.Before(summary.NextRunAt)) {
			summary.NextTask = t.ID
			summary.NextRunAt = t.NextRun
		}
	}
	return summary
}
