// Package workflow implements the fixed-sequence step state machine:
// a workflow instance walks linearly through start -> wait|act -> done,
// with any step able to fail out to the terminal failed state. Modeled
// on the teacher's executeWorkflow node walk in
// services/workflow/engine.go, generalized from "one HTTP request runs
// a whole graph synchronously" to "one instance advances step by step,
// persisted after every transition, recoverable after a crash."
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/invgraph/graphcore/pkg/bus"
	"github.com/invgraph/graphcore/pkg/clock"
	"github.com/invgraph/graphcore/pkg/errs"
	"github.com/invgraph/graphcore/pkg/metrics"
	"github.com/invgraph/graphcore/pkg/store"
	"github.com/invgraph/graphcore/pkg/subscription"
)

// StepKind distinguishes a step that waits for subscriber
// acknowledgement from one that is a local, fire-and-forget marker.
type StepKind string

const (
	PerformAction StepKind = "perform_action"
	EmitEvent     StepKind = "emit_event"
)

// FailurePolicy governs what happens when a step's deadline elapses
// without every subscriber reporting ActionDone.
type FailurePolicy string

const (
	FailPolicy     FailurePolicy = "fail"
	ContinuePolicy FailurePolicy = "continue"
)

// Step is one stage of a WorkflowDescriptor.
type Step struct {
	Name          string
	Kind          StepKind
	Action        bus.MessageType
	Timeout       time.Duration
	FailurePolicy FailurePolicy
}

// WorkflowDescriptor is a fixed sequence of steps, built at startup for
// each of the well-known workflow kinds (collect, cleanup, metrics)
// rather than discovered at runtime.
type WorkflowDescriptor struct {
	Name  string
	Steps []Step
}

// State is one of the five instance states in the step state machine.
type State string

const (
	StateStart  State = "start"
	StateWait   State = "wait"
	StateAct    State = "act"
	StateDone   State = "done"
	StateFailed State = "failed"
)

// Instance is a running (or completed) execution of a
// WorkflowDescriptor, persisted after every transition so that a
// restart can resume it from exactly where it left off.
type Instance struct {
	ID               string                     `json:"id"`
	WorkflowName     string                     `json:"workflowName"`
	StepIndex        int                        `json:"stepIndex"`
	State            State                      `json:"state"`
	StepStartedAt    time.Time                  `json:"stepStartedAt"`
	AwaitedSubscribers map[string]bool          `json:"awaitedSubscribers,omitempty"`
	ReceivedDones    map[string]bool            `json:"receivedDones,omitempty"`
	Variables        map[string]json.RawMessage `json:"variables,omitempty"`
	FailureReason    string                     `json:"failureReason,omitempty"`
	Revision         int64                      `json:"revision"`
}

func (i Instance) currentStep(wf WorkflowDescriptor) (Step, bool) {
	if i.StepIndex < 0 || i.StepIndex >= len(wf.Steps) {
		return Step{}, false
	}
	return wf.Steps[i.StepIndex], true
}

// Engine drives Instances of a fixed set of WorkflowDescriptors,
// persisting state through an EntityStore and communicating over a
// Bus, mirroring the teacher's Service struct holding its Storage and
// Deps collaborators by field (services/workflow/service.go).
type Engine struct {
	descriptors map[string]WorkflowDescriptor
	instances   store.EntityStore[Instance]
	subs        *subscription.Registry
	bus         bus.Bus
	clock       clock.Clock
	metrics     *metrics.Metrics
}

// NewEngine builds an Engine for the given descriptors.
func NewEngine(descriptors []WorkflowDescriptor, instances store.EntityStore[Instance], subs *subscription.Registry, b bus.Bus, c clock.Clock) *Engine {
	m := make(map[string]WorkflowDescriptor, len(descriptors))
	for _, d := range descriptors {
		m[d.Name] = d
	}
	return &Engine{descriptors: m, instances: instances, subs: subs, bus: b, clock: c}
}

// SetMetrics attaches a Metrics collector; optional.
func (e *Engine) SetMetrics(m *metrics.Metrics) { e.metrics = m }

// Start creates a new Instance of workflowName and advances it through
// its first step.
func (e *Engine) Start(ctx context.Context, id, workflowName string, variables map[string]json.RawMessage) (Instance, error) {
	wf, ok := e.descriptors[workflowName]
	if !ok {
		return Instance{}, errs.NotFound("no workflow descriptor named " + workflowName)
	}
	inst := Instance{
		ID:           id,
		WorkflowName: workflowName,
		StepIndex:    0,
		State:        StateStart,
		Variables:    variables,
	}
	if err := e.persist(ctx, &inst); err != nil {
		return Instance{}, err
	}
	return e.advanceFromStart(ctx, wf, inst)
}

func (e *Engine) persist(ctx context.Context, inst *Instance) error {
	inst.Revision++
	return e.instances.Put(ctx, inst.ID, *inst)
}

// advanceFromStart transitions a step newly entered at StateStart into
// either wait or act, per its kind.
func (e *Engine) advanceFromStart(ctx context.Context, wf WorkflowDescriptor, inst Instance) (Instance, error) {
	step, ok := inst.currentStep(wf)
	if !ok {
		inst.State = StateDone
		if err := e.persist(ctx, &inst); err != nil {
			return inst, err
		}
		return inst, nil
	}

	switch step.Kind {
	case EmitEvent:
		if e.bus != nil {
			data, _ := json.Marshal(inst.Variables)
			if err := e.bus.PublishEvent(ctx, bus.Event{Type: step.Action, Data: data}); err != nil {
				slog.Warn("failed to publish event step", "workflow", inst.WorkflowName, "step", step.Name, "error", err)
			}
		}
		return e.completeStep(ctx, wf, inst)
	case PerformAction:
		return e.enterAct(ctx, wf, inst, step)
	default:
		return Instance{}, fmt.Errorf("workflow %q step %q: unknown step kind %q", inst.WorkflowName, step.Name, step.Kind)
	}
}

// enterAct snapshots subscribers-at-entry, emits the Action, and
// persists the awaited set. New subscribers registered after this
// point do not participate in this step's completion.
func (e *Engine) enterAct(ctx context.Context, wf WorkflowDescriptor, inst Instance, step Step) (Instance, error) {
	awaited := map[string]bool{}
	if e.subs != nil {
		subs, err := e.subs.ListSubscriberFor(ctx, string(step.Action))
		if err != nil {
			return Instance{}, fmt.Errorf("list subscribers for step %q: %w", step.Name, err)
		}
		for _, s := range subs {
			awaited[s.ID] = true
		}
	}

	inst.State = StateAct
	inst.AwaitedSubscribers = awaited
	inst.ReceivedDones = map[string]bool{}
	inst.StepStartedAt = e.clock.Now()
	if err := e.persist(ctx, &inst); err != nil {
		return Instance{}, err
	}

	if e.bus != nil {
		data, _ := json.Marshal(inst.Variables)
		if err := e.bus.PublishAction(ctx, bus.Action{Type: step.Action, WorkflowID: inst.ID, StepName: step.Name, Data: data}); err != nil {
			slog.Warn("failed to publish action", "workflow", inst.WorkflowName, "step", step.Name, "error", err)
		}
	}

	if len(awaited) == 0 {
		return e.completeStep(ctx, wf, inst)
	}
	return inst, nil
}

// HandleActionDone records subscriberID's acknowledgement of
// inst.currentStep's action. Once every awaited subscriber has
// reported, the step completes and the engine advances.
func (e *Engine) HandleActionDone(ctx context.Context, instanceID, subscriberID string) (Instance, error) {
	inst, err := e.instances.Get(ctx, instanceID)
	if err != nil {
		return Instance{}, err
	}
	if inst.State != StateAct {
		return inst, nil
	}
	wf, ok := e.descriptors[inst.WorkflowName]
	if !ok {
		return Instance{}, errs.NotFound("no workflow descriptor named " + inst.WorkflowName)
	}
	if !inst.AwaitedSubscribers[subscriberID] {
		// not part of the frozen snapshot for this step; ignore.
		return inst, nil
	}
	if inst.ReceivedDones == nil {
		inst.ReceivedDones = map[string]bool{}
	}
	inst.ReceivedDones[subscriberID] = true

	if !everyAwaitedReceived(inst) {
		if err := e.persist(ctx, &inst); err != nil {
			return Instance{}, err
		}
		return inst, nil
	}
	return e.completeStep(ctx, wf, inst)
}

func everyAwaitedReceived(inst Instance) bool {
	for id := range inst.AwaitedSubscribers {
		if !inst.ReceivedDones[id] {
			return false
		}
	}
	return true
}

// completeStep advances inst to its next step (or to done if the
// sequence is exhausted), restarting from the start-of-step logic.
func (e *Engine) completeStep(ctx context.Context, wf WorkflowDescriptor, inst Instance) (Instance, error) {
	if e.metrics != nil {
		if step, ok := inst.currentStep(wf); ok && !inst.StepStartedAt.IsZero() {
			e.metrics.WorkflowStepSeconds.WithLabelValues(inst.WorkflowName, step.Name).
				Observe(e.clock.Now().Sub(inst.StepStartedAt).Seconds())
		}
	}
	inst.StepIndex++
	inst.AwaitedSubscribers = nil
	inst.ReceivedDones = nil
	inst.State = StateStart
	if err := e.persist(ctx, &inst); err != nil {
		return Instance{}, err
	}
	return e.advanceFromStart(ctx, wf, inst)
}

// Fail moves inst to the terminal failed state, recording reason.
// Any worker tasks the instance originated are the caller's
// responsibility to cancel (the engine only owns workflow state).
func (e *Engine) Fail(ctx context.Context, instanceID, reason string) (Instance, error) {
	inst, err := e.instances.Get(ctx, instanceID)
	if err != nil {
		return Instance{}, err
	}
	inst.State = StateFailed
	inst.FailureReason = reason
	if err := e.persist(ctx, &inst); err != nil {
		return Instance{}, err
	}
	if e.metrics != nil {
		e.metrics.WorkflowFailures.WithLabelValues(inst.WorkflowName).Inc()
	}
	return inst, nil
}

// CheckTimeouts applies failure_policy to inst if its current step's
// deadline has elapsed: fail moves it to StateFailed, continue forces
// completeStep as if every subscriber had acknowledged.
func (e *Engine) CheckTimeouts(ctx context.Context, instanceID string) (Instance, error) {
	inst, err := e.instances.Get(ctx, instanceID)
	if err != nil {
		return Instance{}, err
	}
	if inst.State != StateAct {
		return inst, nil
	}
	wf, ok := e.descriptors[inst.WorkflowName]
	if !ok {
		return Instance{}, errs.NotFound("no workflow descriptor named " + inst.WorkflowName)
	}
	step, ok := inst.currentStep(wf)
	if !ok {
		return inst, nil
	}
	if !clock.Deadline(inst.StepStartedAt, step.Timeout, e.clock.Now()) {
		return inst, nil
	}

	switch step.FailurePolicy {
	case ContinuePolicy:
		return e.completeStep(ctx, wf, inst)
	default:
		inst.State = StateFailed
		inst.FailureReason = fmt.Sprintf("step %q timed out waiting for %d subscriber(s)", step.Name, len(inst.AwaitedSubscribers)-len(inst.ReceivedDones))
		if err := e.persist(ctx, &inst); err != nil {
			return Instance{}, err
		}
		if e.metrics != nil {
			e.metrics.WorkflowFailures.WithLabelValues(inst.WorkflowName).Inc()
		}
		return inst, nil
	}
}

// Recover loads every non-terminal instance and checks its timeout
// once, applying failure_policy immediately for any whose deadline
// already elapsed while the process was down. No later check is
// scheduled for instances whose deadline has not yet passed.
func (e *Engine) Recover(ctx context.Context) error {
	all, err := e.instances.List(ctx)
	if err != nil {
		return fmt.Errorf("list instances for recovery: %w", err)
	}
	for _, inst := range all {
		if inst.State == StateDone || inst.State == StateFailed {
			continue
		}
		if _, err := e.CheckTimeouts(ctx, inst.ID); err != nil {
			slog.Error("failed to re-arm instance on recovery", "instance", inst.ID, "error", err)
		}
	}
	return nil
}

// PendingAction is one Action a subscriber is currently being awaited
// on across all running instances.
type PendingAction struct {
	InstanceID string
	StepName   string
	Action     bus.MessageType
}

// ListPendingActionsFor returns every Action subscriberID is currently
// awaited on and has not yet acknowledged.
func (e *Engine) ListPendingActionsFor(ctx context.Context, subscriberID string) ([]PendingAction, error) {
	all, err := e.instances.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []PendingAction
	for _, inst := range all {
		if inst.State != StateAct {
			continue
		}
		if !inst.AwaitedSubscribers[subscriberID] || inst.ReceivedDones[subscriberID] {
			continue
		}
		wf, ok := e.descriptors[inst.WorkflowName]
		if !ok {
			continue
		}
		step, ok := inst.currentStep(wf)
		if !ok {
			continue
		}
		out = append(out, PendingAction{InstanceID: inst.ID, StepName: step.Name, Action: step.Action})
	}
	return out, nil
}
