package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	nats "github.com/nats-io/nats.go"
)

// subjectPrefix namespaces graphcore's three message kinds on the
// shared NATS subject space.
const subjectPrefix = "graphcore"

// NATSBus fans Event/Action/ActionDone messages out across processes,
// for deployments where collector workers run detached from the core
// service. Grounded on the NATS publish/subscribe pattern in
// anhnv24810310060-source-SWARM-INTELLIGENCE-NETWORK's natsctx package,
// simplified to drop its OpenTelemetry propagation (not part of this
// module's dependency set).
type NATSBus struct {
	conn *nats.Conn
}

// NewNATSBus wraps an already-connected *nats.Conn.
func NewNATSBus(conn *nats.Conn) *NATSBus {
	return &NATSBus{conn: conn}
}

func subject(kind string, msgType MessageType) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, kind, msgType)
}

func (b *NATSBus) PublishEvent(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.conn.Publish(subject("event", ev.Type), data)
}

func (b *NATSBus) PublishAction(_ context.Context, a Action) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return b.conn.Publish(subject("action", a.Type), data)
}

func (b *NATSBus) PublishActionDone(_ context.Context, d ActionDone) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return b.conn.Publish(subject("action_done", d.Type), data)
}

func (b *NATSBus) SubscribeEvents(msgType MessageType, h EventHandler) func() {
	sub, err := b.conn.Subscribe(subject("event", msgType), func(m *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			slog.Error("nats bus: invalid event payload", "error", err)
			return
		}
		h(context.Background(), ev)
	})
	if err != nil {
		slog.Error("nats bus: subscribe failed", "messageType", msgType, "error", err)
		return func() {}
	}
	return func() { _ = sub.Unsubscribe() }
}

func (b *NATSBus) SubscribeActions(msgType MessageType, h ActionHandler) func() {
	sub, err := b.conn.Subscribe(subject("action", msgType), func(m *nats.Msg) {
		var a Action
		if err := json.Unmarshal(m.Data, &a); err != nil {
			slog.Error("nats bus: invalid action payload", "error", err)
			return
		}
		h(context.Background(), a)
	})
	if err != nil {
		slog.Error("nats bus: subscribe failed", "messageType", msgType, "error", err)
		return func() {}
	}
	return func() { _ = sub.Unsubscribe() }
}

func (b *NATSBus) SubscribeActionDone(msgType MessageType, h ActionDoneHandler) func() {
	sub, err := b.conn.Subscribe(subject("action_done", msgType), func(m *nats.Msg) {
		var d ActionDone
		if err := json.Unmarshal(m.Data, &d); err != nil {
			slog.Error("nats bus: invalid action_done payload", "error", err)
			return
		}
		h(context.Background(), d)
	})
	if err != nil {
		slog.Error("nats bus: subscribe failed", "messageType", msgType, "error", err)
		return func() {}
	}
	return func() { _ = sub.Unsubscribe() }
}

var _ Bus = (*NATSBus)(nil)
var _ Bus = (*InProcess)(nil)
