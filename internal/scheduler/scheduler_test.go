package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/logging"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/notifications"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/scheduler"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/services"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/stage"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/testsupport"
)

type countingProcessor struct {
	name     string
	delay    time.Duration
	err      error
	ticks    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

func (p *countingProcessor) Name() string { return p.name }

func (p *countingProcessor) Tick(ctx context.Context) error {
	current := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.maxSeen.Load()
		if current <= peak || p.maxSeen.CompareAndSwap(peak, current) {
			break
		}
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.ticks.Add(1)
	return p.err
}

func (p *countingProcessor) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(p.name)
}

func newScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return scheduler.New(logging.NewNop(), notifications.NewService(cfg))
}

func TestSchedulerTicksRegisteredStages(t *testing.T) {
	sched := newScheduler(t)
	fast := &countingProcessor{name: "fast"}
	slow := &countingProcessor{name: "slow"}
	sched.Register(fast, 5*time.Millisecond)
	sched.Register(slow, 25*time.Millisecond)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sched.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fast.ticks.Load() >= 3 && slow.ticks.Load() >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if fast.ticks.Load() < 3 {
		t.Fatalf("expected fast stage to tick repeatedly, got %d", fast.ticks.Load())
	}
	if slow.ticks.Load() < 1 {
		t.Fatalf("expected slow stage to tick, got %d", slow.ticks.Load())
	}
}

func TestSchedulerNeverOverlapsTicksPerStage(t *testing.T) {
	sched := newScheduler(t)
	proc := &countingProcessor{name: "sluggish", delay: 20 * time.Millisecond}
	sched.Register(proc, time.Millisecond)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	sched.Stop()

	if proc.maxSeen.Load() > 1 {
		t.Fatalf("expected at most one concurrent tick, saw %d", proc.maxSeen.Load())
	}
	if proc.ticks.Load() == 0 {
		t.Fatal("expected at least one completed tick")
	}
}

type contextCapturingProcessor struct {
	name      string
	gotStage  atomic.Value
	gotCorrID atomic.Value
	ticked    atomic.Bool
}

func (p *contextCapturingProcessor) Name() string { return p.name }

func (p *contextCapturingProcessor) Tick(ctx context.Context) error {
	if stageName, ok := services.StageFromContext(ctx); ok {
		p.gotStage.Store(stageName)
	}
	if corrID, ok := services.CorrelationIDFromContext(ctx); ok {
		p.gotCorrID.Store(corrID)
	}
	p.ticked.Store(true)
	return nil
}

func (p *contextCapturingProcessor) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(p.name)
}

func TestSchedulerAnnotatesTickContext(t *testing.T) {
	sched := newScheduler(t)
	proc := &contextCapturingProcessor{name: "annotated"}
	sched.Register(proc, 5*time.Millisecond)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !proc.ticked.Load() {
		time.Sleep(5 * time.Millisecond)
	}
	sched.Stop()

	if got, _ := proc.gotStage.Load().(string); got != "annotated" {
		t.Fatalf("expected stage name on tick context, got %q", got)
	}
	if got, _ := proc.gotCorrID.Load().(string); got == "" {
		t.Fatal("expected a correlation id on tick context")
	}
}

func TestSchedulerRecordsStageFailures(t *testing.T) {
	sched := newScheduler(t)
	proc := &countingProcessor{name: "broken", err: errors.New("boom")}
	sched.Register(proc, 5*time.Millisecond)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && proc.ticks.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	sched.Stop()

	statuses := sched.Status()
	if len(statuses) != 1 {
		t.Fatalf("expected one stage status, got %d", len(statuses))
	}
	if statuses[0].LastErr != "boom" {
		t.Fatalf("expected recorded failure, got %+v", statuses[0])
	}
	if statuses[0].Runs == 0 {
		t.Fatal("expected recorded runs")
	}
}

func TestSchedulerRejectsDoubleStart(t *testing.T) {
	sched := newScheduler(t)
	sched.Register(&countingProcessor{name: "only"}, time.Second)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sched.Stop()

	if err := sched.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	if !sched.Running() {
		t.Fatal("expected scheduler still running")
	}
}
