package scheduler

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"etf-tracker/internal/errors"
)

func newTestScheduler() *Scheduler {
	return New(10*time.Millisecond, zerolog.Nop())
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestOneShotTaskRunsOnceAndCompletes(t *testing.T) {
	s := newTestScheduler()
	var runs atomic.Int32

	err := s.Register(&Task{
		ID:   "once",
		Kind: KindCallback,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	s.Start()
	defer s.Stop(time.Second)

	waitFor(t, time.Second, func() bool {
		task, _ := s.Get("once")
		return task.State == StateCompleted
	})

	// Give the loop more polls to prove the task never reruns.
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Errorf("one-shot task ran %d times", got)
	}
}

func TestRecurringTaskReschedules(t *testing.T) {
	s := newTestScheduler()
	var runs atomic.Int32

	s.Register(&Task{
		ID:       "recurring",
		Kind:     KindCallback,
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start()
	defer s.Stop(time.Second)

	waitFor(t, time.Second, func() bool { return runs.Load() >= 2 })

	task, _ := s.Get("recurring")
	if task.State != StatePending && task.State != StateRunning && task.State != StateCompleted {
		t.Errorf("recurring task in unexpected state %s", task.State)
	}
	if task.NextRun.IsZero() {
		t.Error("recurring task must always carry a next run time")
	}
}

func TestFailingTaskDoesNotStopOthers(t *testing.T) {
	s := newTestScheduler()
	var goodRuns atomic.Int32

	s.Register(&Task{
		ID:       "bad",
		Kind:     KindCallback,
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			return stderrors.New("always fails")
		},
	})
	s.Register(&Task{
		ID:       "panics",
		Kind:     KindCallback,
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			panic("boom")
		},
	})
	s.Register(&Task{
		ID:       "good",
		Kind:     KindCallback,
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			goodRuns.Add(1)
			return nil
		},
	})

	s.Start()
	defer s.Stop(time.Second)

	waitFor(t, time.Second, func() bool { return goodRuns.Load() >= 2 })

	bad, _ := s.Get("bad")
	if bad.LastError == "" {
		t.Error("failing task should record its error")
	}
	if bad.State != StatePending && bad.State != StateRunning && bad.State != StateFailed {
		t.Errorf("failing recurring task in unexpected state %s", bad.State)
	}
}

func TestRunCountCeiling(t *testing.T) {
	s := newTestScheduler()
	var runs atomic.Int32

	s.Register(&Task{
		ID:       "capped",
		Kind:     KindCallback,
		Interval: 5 * time.Millisecond,
		MaxRuns:  2,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start()
	defer s.Stop(time.Second)

	waitFor(t, time.Second, func() bool {
		task, _ := s.Get("capped")
		return task.State == StateCompleted
	})

	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 2 {
		t.Errorf("capped task ran %d times, want 2", got)
	}
}

func TestCancelOnlyFromPending(t *testing.T) {
	s := newTestScheduler()

	s.Register(&Task{
		ID:      "future",
		Kind:    KindCallback,
		NextRun: time.Now().Add(time.Hour),
		Run:     func(ctx context.Context) error { return nil },
	})

	if err := s.Cancel("future"); err != nil {
		t.Fatalf("cancelling a pending task: %v", err)
	}
	task, _ := s.Get("future")
	if task.State != StateCancelled {
		t.Errorf("state = %s, want cancelled", task.State)
	}

	// Cancelled is terminal.
	if err := s.Cancel("future"); err == nil {
		t.Error("cancelling a cancelled task must fail")
	}

	if err := s.Cancel("missing"); !stderrors.Is(err, errors.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestCancelledTaskNeverRuns(t *testing.T) {
	s := newTestScheduler()
	var runs atomic.Int32

	s.Register(&Task{
		ID:      "doomed",
		Kind:    KindCallback,
		NextRun: time.Now().Add(30 * time.Millisecond),
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	s.Cancel("doomed")

	s.Start()
	defer s.Stop(time.Second)

	time.Sleep(100 * time.Millisecond)
	if runs.Load() != 0 {
		t.Error("cancelled task must never execute")
	}
}

func TestRegisterRejectsInvalidTasks(t *testing.T) {
	s := newTestScheduler()

	if err := s.Register(&Task{ID: "norun", Kind: KindCallback}); err == nil {
		t.Error("task without a handler must be rejected")
	}
	if err := s.Register(&Task{Kind: KindCallback, Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Error("task without an identifier must be rejected")
	}
}

func TestRegisterReplacesExistingTask(t *testing.T) {
	s := newTestScheduler()
	run := func(ctx context.Context) error { return nil }

	s.Register(&Task{
		ID:      "job",
		Kind:    KindCallback,
		Name:    "first",
		NextRun: time.Now().Add(time.Hour),
		Run:     run,
	})

	later := time.Now().Add(2 * time.Hour)
	if err := s.Register(&Task{
		ID:      "job",
		Kind:    KindCallback,
		Name:    "second",
		NextRun: later,
		Run:     run,
	}); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	task, ok := s.Get("job")
	if !ok {
		t.Fatal("replaced task missing")
	}
	if task.Name != "second" || !task.NextRun.Equal(later) {
		t.Errorf("re-register must replace the task, got %+v", task)
	}
	if got := len(s.Tasks()); got != 1 {
		t.Errorf("task table holds %d entries, want 1", got)
	}
}

func TestStartIsIdempotentAndStopIsBounded(t *testing.T) {
	s := newTestScheduler()
	s.Start()
	s.Start() // no-op with a warning

	if !s.Running() {
		t.Fatal("scheduler should be running")
	}
	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.Running() {
		t.Error("scheduler should be stopped")
	}
	// Stopping again is a no-op.
	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestRestartAfterTimedOutStop(t *testing.T) {
	s := newTestScheduler()
	release := make(chan struct{})
	started := make(chan struct{})

	s.Register(&Task{
		ID:   "slow",
		Kind: KindCallback,
		Run: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	})
	s.Start()
	<-started

	if err := s.Stop(10 * time.Millisecond); !stderrors.Is(err, errors.ErrSchedulerStopped) {
		t.Fatalf("expected a stop timeout, got %v", err)
	}

	// Restart while the old loop is still blocked inside the slow task.
	// The old loop holds its original channels, so it must wind down on
	// its own once the task returns instead of adopting the new ones.
	var runs atomic.Int32
	s.Register(&Task{
		ID:       "fresh",
		Kind:     KindCallback,
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	s.Start()
	waitFor(t, time.Second, func() bool { return runs.Load() >= 1 })

	close(release)
	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("stop after restart: %v", err)
	}
	if s.Running() {
		t.Error("scheduler should be stopped")
	}
}

func TestStatusSummary(t *testing.T) {
	s := newTestScheduler()
	s.Register(&Task{
		ID:      "soon",
		Kind:    KindCallback,
		NextRun: time.Now().Add(time.Minute),
		Run:     func(ctx context.Context) error { return nil },
	})
	s.Register(&Task{
		ID:      "later",
		Kind:    KindCallback,
		NextRun: time.Now().Add(time.Hour),
		Run:     func(ctx context.Context) error { return nil },
	})

	status := s.Status()
	if status.Total != 2 {
		t.Errorf("total = %d, want 2", status.Total)
	}
	if status.ByState[StatePending] != 2 {
		t.Errorf("pending = %d, want 2", status.ByState[StatePending])
	}
	if status.NextTask != "soon" {
		t.Errorf("next task = %q, want soon", status.NextTask)
	}
	if status.Running {
		t.Error("stopped scheduler must report not running")
	}
}
