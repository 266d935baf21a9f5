package worker

import (
	"testing"
	"time"

	"github.com/invgraph/graphcore/pkg/clock"
)

func TestOfferDispatchesImmediatelyToAttachedWorker(t *testing.T) {
	q := New(clock.Real, 0, time.Minute, 3)
	q.Attach("w1", "scan")

	done := q.Offer(Task{ID: "t1", TaskType: "scan"})
	if err := q.Ack("t1", nil); err != nil {
		t.Fatalf("ack: %v", err)
	}
	select {
	case res := <-done:
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
	default:
		t.Fatal("expected result to be available after ack")
	}
}

func TestOfferQueuesWithoutWorkerThenTryDispatch(t *testing.T) {
	q := New(clock.Real, 0, time.Minute, 3)
	_ = q.Offer(Task{ID: "t1", TaskType: "scan"})

	task, ok := q.TryDispatch("scan", "w1")
	if !ok || task.ID != "t1" {
		t.Fatalf("expected to dispatch t1, got %+v ok=%v", task, ok)
	}
	if err := q.Ack("t1", nil); err != nil {
		t.Fatalf("ack: %v", err)
	}
}

func TestDetachRequeuesInFlightTask(t *testing.T) {
	q := New(clock.Real, 0, time.Minute, 3)
	q.Attach("w1", "scan")
	_ = q.Offer(Task{ID: "t1", TaskType: "scan"})

	q.Detach("w1", "scan")

	task, ok := q.TryDispatch("scan", "w2")
	if !ok || task.ID != "t1" {
		t.Fatalf("expected t1 requeued to w2, got %+v ok=%v", task, ok)
	}
}

func TestNackRetriesUnderMaxAttempts(t *testing.T) {
	q := New(clock.Real, 0, time.Minute, 3)
	q.Attach("w1", "scan")
	done := q.Offer(Task{ID: "t1", TaskType: "scan", MaxAttempts: 2})

	if err := q.Nack("t1", errTest); err != nil {
		t.Fatalf("nack: %v", err)
	}

	select {
	case <-done:
		t.Fatal("task should have been retried, not resolved")
	default:
	}

	task, ok := q.TryDispatch("scan", "w1")
	if !ok || task.Attempts != 1 {
		t.Fatalf("expected retried task with Attempts=1, got %+v ok=%v", task, ok)
	}
}

func TestNackResolvesOnceAttemptsExhausted(t *testing.T) {
	q := New(clock.Real, 0, time.Minute, 3)
	q.Attach("w1", "scan")
	done := q.Offer(Task{ID: "t1", TaskType: "scan", MaxAttempts: 1})

	if err := q.Nack("t1", errTest); err != nil {
		t.Fatalf("nack: %v", err)
	}

	select {
	case res := <-done:
		if res.Err == nil {
			t.Fatal("expected final nack to surface the error")
		}
	default:
		t.Fatal("expected result to be resolved once attempts exhausted")
	}
}

func TestExpireDeadlinesNacksStaleTask(t *testing.T) {
	start := time.Now()
	fc := &fixedClock{at: start}
	q := New(fc, 0, time.Second, 3)
	q.Attach("w1", "scan")
	done := q.Offer(Task{ID: "t1", TaskType: "scan", MaxAttempts: 1})

	fc.at = start.Add(2 * time.Second)
	q.ExpireDeadlines(nil)

	select {
	case res := <-done:
		if res.Err == nil {
			t.Fatal("expected timeout error")
		}
	default:
		t.Fatal("expected expired task to resolve")
	}
}

type fixedClock struct{ at time.Time }

func (f *fixedClock) Now() time.Time { return f.at }

var errTest = errTestType{}

type errTestType struct{}

func (errTestType) Error() string { return "test error" }
