// Package subscription implements the registry of worker subscribers
// that the workflow engine consults when a step enters "act".
package subscription

import (
	"context"
	"encoding/json"
	"time"

	"github.com/invgraph/graphcore/pkg/bus"
	"github.com/invgraph/graphcore/pkg/store"
)

// Subscriber is one worker's registration for a message type.
type Subscriber struct {
	ID          string        `json:"id"`
	MessageType string        `json:"messageType"`
	Wait        bool          `json:"wait"`
	Timeout     time.Duration `json:"timeout"`
}

func (s Subscriber) Key() string { return s.ID + "/" + s.MessageType }

// Registry persists subscribers via an EntityStore and announces
// changes on the message bus, mirroring the teacher's pattern of a
// thin service struct wrapping a Storage interface plus an injected
// collaborator (see services/workflow/service.go's Service).
type Registry struct {
	store store.EntityStore[Subscriber]
	bus   bus.Bus
}

// New builds a Registry backed by st, announcing changes on b.
func New(st store.EntityStore[Subscriber], b bus.Bus) *Registry {
	return &Registry{store: st, bus: b}
}

// AddSubscription upserts a subscriber for messageType.
func (r *Registry) AddSubscription(ctx context.Context, subscriberID, messageType string, wait bool, timeout time.Duration) error {
	sub := Subscriber{ID: subscriberID, MessageType: messageType, Wait: wait, Timeout: timeout}
	if err := r.store.Put(ctx, sub.Key(), sub); err != nil {
		return err
	}
	return r.emitChanged(ctx, messageType)
}

// RemoveSubscription drops a subscriber's registration for messageType.
func (r *Registry) RemoveSubscription(ctx context.Context, subscriberID, messageType string) error {
	key := Subscriber{ID: subscriberID, MessageType: messageType}.Key()
	if err := r.store.Delete(ctx, key); err != nil {
		return err
	}
	return r.emitChanged(ctx, messageType)
}

// ListSubscriberFor returns every subscriber registered for messageType.
func (r *Registry) ListSubscriberFor(ctx context.Context, messageType string) ([]Subscriber, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Subscriber
	for _, s := range all {
		if s.MessageType == messageType {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Registry) emitChanged(ctx context.Context, messageType string) error {
	if r.bus == nil {
		return nil
	}
	subs, err := r.ListSubscriberFor(ctx, messageType)
	if err != nil {
		return err
	}
	data, err := json.Marshal(subs)
	if err != nil {
		return err
	}
	return r.bus.PublishEvent(ctx, bus.Event{Type: "subscribers_changed", Data: data})
}
