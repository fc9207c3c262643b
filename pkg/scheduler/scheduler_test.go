package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yeisme/yukumo/pkg/scheduler"
)

func newScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()

	s, err := scheduler.NewScheduler()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	s.Start()
	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func waitRuns(t *testing.T, s *scheduler.Scheduler, name string, runs int) scheduler.JobInfo {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		info, err := s.Job(name)
		if err != nil {
			t.Fatalf("job info: %v", err)
		}

		if info.Runs >= runs {
			return info
		}

		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("job %s did not run %d times", name, runs)

	return scheduler.JobInfo{}
}

func TestRunNowRecordsSuccess(t *testing.T) {
	s := newScheduler(t)

	called := make(chan struct{}, 1)

	err := s.AddCron(context.Background(), "resync", "0 0 1 1 *", func(context.Context) error {
		called <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.RunNow("resync"); err != nil {
		t.Fatalf("run now: %v", err)
	}

	info := waitRuns(t, s, "resync", 1)
	if info.Status != scheduler.StatusScheduled || info.Error != "" || info.LastSuccess.IsZero() {
		t.Errorf("info = %+v", info)
	}

	select {
	case <-called:
	default:
		t.Errorf("job body not called")
	}
}

func TestJobErrorIsRecorded(t *testing.T) {
	s := newScheduler(t)

	err := s.AddCron(context.Background(), "audit", "0 0 1 1 *", func(context.Context) error {
		return errors.New("catalog unreachable")
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.RunNow("audit"); err != nil {
		t.Fatalf("run now: %v", err)
	}

	info := waitRuns(t, s, "audit", 1)
	if info.Status != scheduler.StatusError || info.Error != "catalog unreachable" {
		t.Errorf("info = %+v", info)
	}
}

func TestJobPanicIsRecorded(t *testing.T) {
	s := newScheduler(t)

	err := s.AddCron(context.Background(), "boom", "0 0 1 1 *", func(context.Context) error {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.RunNow("boom"); err != nil {
		t.Fatalf("run now: %v", err)
	}

	if info := waitRuns(t, s, "boom", 1); info.Status != scheduler.StatusError || info.Error != "panic: boom" {
		t.Errorf("info = %+v", info)
	}
}

func TestAddCronValidation(t *testing.T) {
	s := newScheduler(t)
	noop := func(context.Context) error { return nil }

	if err := s.AddCron(context.Background(), "a", "*/5 * * * *", noop); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.AddCron(context.Background(), "a", "*/5 * * * *", noop); err == nil {
		t.Errorf("duplicate name accepted")
	}

	if err := s.AddCron(context.Background(), "b", "not a cron", noop); err == nil {
		t.Errorf("invalid cron accepted")
	}

	if err := s.RunNow("missing"); !errors.Is(err, scheduler.ErrJobNotFound) {
		t.Errorf("RunNow(missing) = %v, want ErrJobNotFound", err)
	}

	if err := s.Remove("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if got := len(s.Jobs()); got != 0 {
		t.Errorf("jobs after remove = %d", got)
	}
}
