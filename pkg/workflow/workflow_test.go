package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/invgraph/graphcore/pkg/bus"
	"github.com/invgraph/graphcore/pkg/clock"
	"github.com/invgraph/graphcore/pkg/store"
	"github.com/invgraph/graphcore/pkg/subscription"
)

func newTestEngine(t *testing.T, c clock.Clock) (*Engine, *subscription.Registry, bus.Bus) {
	t.Helper()
	descriptors := []WorkflowDescriptor{
		{
			Name: "collect",
			Steps: []Step{
				{Name: "workflow_start", Kind: EmitEvent, Action: "workflow_start"},
				{Name: "collect", Kind: PerformAction, Action: "collect", Timeout: time.Minute, FailurePolicy: FailPolicy},
				{Name: "workflow_end", Kind: EmitEvent, Action: "workflow_end"},
			},
		},
	}
	b := bus.New()
	subs := subscription.New(store.NewInMemory[subscription.Subscriber](), b)
	instances := store.NewInMemory[Instance]()
	return NewEngine(descriptors, instances, subs, b, c), subs, b
}

func TestStartAdvancesThroughEmitEventSteps(t *testing.T) {
	ctx := context.Background()
	e, subs, _ := newTestEngine(t, clock.Real)
	if err := subs.AddSubscription(ctx, "worker-1", "collect", true, time.Minute); err != nil {
		t.Fatalf("add subscription: %v", err)
	}

	inst, err := e.Start(ctx, "inst-1", "collect", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if inst.State != StateAct {
		t.Fatalf("expected act state waiting on subscriber, got %v", inst.State)
	}
	if !inst.AwaitedSubscribers["worker-1"] {
		t.Fatalf("expected worker-1 to be awaited, got %+v", inst.AwaitedSubscribers)
	}
}

func TestActCompletesImmediatelyWithNoSubscribers(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, clock.Real)

	inst, err := e.Start(ctx, "inst-1", "collect", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if inst.State != StateDone {
		t.Fatalf("expected workflow to complete with no subscribers, got %v", inst.State)
	}
}

func TestHandleActionDoneAdvancesOnceAllReceived(t *testing.T) {
	ctx := context.Background()
	e, subs, _ := newTestEngine(t, clock.Real)
	_ = subs.AddSubscription(ctx, "worker-1", "collect", true, time.Minute)
	_ = subs.AddSubscription(ctx, "worker-2", "collect", true, time.Minute)

	inst, _ := e.Start(ctx, "inst-1", "collect", nil)
	if inst.State != StateAct {
		t.Fatalf("expected act, got %v", inst.State)
	}

	inst, err := e.HandleActionDone(ctx, "inst-1", "worker-1")
	if err != nil {
		t.Fatalf("handle done: %v", err)
	}
	if inst.State != StateAct {
		t.Fatalf("expected still waiting on worker-2, got %v", inst.State)
	}

	inst, err = e.HandleActionDone(ctx, "inst-1", "worker-2")
	if err != nil {
		t.Fatalf("handle done: %v", err)
	}
	if inst.State != StateDone {
		t.Fatalf("expected done after all subscribers acknowledged, got %v", inst.State)
	}
}

func TestSubscriberAddedAfterEntryDoesNotParticipate(t *testing.T) {
	ctx := context.Background()
	e, subs, _ := newTestEngine(t, clock.Real)
	_ = subs.AddSubscription(ctx, "worker-1", "collect", true, time.Minute)

	inst, _ := e.Start(ctx, "inst-1", "collect", nil)
	if inst.State != StateAct {
		t.Fatalf("expected act, got %v", inst.State)
	}

	_ = subs.AddSubscription(ctx, "worker-2", "collect", true, time.Minute)

	inst, err := e.HandleActionDone(ctx, "inst-1", "worker-1")
	if err != nil {
		t.Fatalf("handle done: %v", err)
	}
	if inst.State != StateDone {
		t.Fatalf("expected done — late subscriber should not block completion, got %v", inst.State)
	}
}

func TestCheckTimeoutsFailsOnFailPolicy(t *testing.T) {
	ctx := context.Background()
	start := time.Now()
	fc := &fixedClock{at: start}
	e, subs, _ := newTestEngine(t, fc)
	_ = subs.AddSubscription(ctx, "worker-1", "collect", true, time.Minute)

	inst, _ := e.Start(ctx, "inst-1", "collect", nil)
	if inst.State != StateAct {
		t.Fatalf("expected act, got %v", inst.State)
	}

	fc.at = start.Add(2 * time.Minute)
	inst, err := e.CheckTimeouts(ctx, "inst-1")
	if err != nil {
		t.Fatalf("check timeouts: %v", err)
	}
	if inst.State != StateFailed {
		t.Fatalf("expected failed after timeout, got %v", inst.State)
	}
}

func TestListPendingActionsForFiltersToAwaitingSubscriber(t *testing.T) {
	ctx := context.Background()
	e, subs, _ := newTestEngine(t, clock.Real)
	_ = subs.AddSubscription(ctx, "worker-1", "collect", true, time.Minute)

	_, err := e.Start(ctx, "inst-1", "collect", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	pending, err := e.ListPendingActionsFor(ctx, "worker-1")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].InstanceID != "inst-1" {
		t.Fatalf("expected one pending action for worker-1, got %+v", pending)
	}

	none, err := e.ListPendingActionsFor(ctx, "worker-2")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no pending actions for worker-2, got %+v", none)
	}
}

type fixedClock struct{ at time.Time }

func (f *fixedClock) Now() time.Time { return f.at }
