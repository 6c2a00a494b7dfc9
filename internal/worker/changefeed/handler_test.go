package changefeed

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/Additional-Code/beacon/internal/config"
	"github.com/Additional-Code/beacon/internal/messaging"
	"github.com/Additional-Code/beacon/internal/sync"
)

type fakePulser struct {
	events []sync.ChangeEvent
}

func (p *fakePulser) HandleChange(ev sync.ChangeEvent) {
	p.events = append(p.events, ev)
}

func testHandlerConfig() config.Config {
	cfg := config.Config{}
	cfg.Messaging.Kafka.ChangeTopic = "store.changes"
	return cfg
}

func TestChangeHandlerDecodesAndPulses(t *testing.T) {
	pulser := &fakePulser{}
	reg := NewChangeHandler(pulser, zap.NewNop(), testHandlerConfig())

	if reg.Topic != "store.changes" {
		t.Fatalf("topic = %q, want store.changes", reg.Topic)
	}

	msg := messaging.Message{
		Topic: "store.changes",
		Value: []byte(`{"table":"orders","operation":"update","row":{"id":"ord-1"}}`),
	}
	if err := reg.Handler(context.Background(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if len(pulser.events) != 1 {
		t.Fatalf("pulsed %d events, want 1", len(pulser.events))
	}
	ev := pulser.events[0]
	if ev.Table != sync.TableOrders || ev.Operation != sync.OpUpdate {
		t.Fatalf("event = %+v, want orders/UPDATE", ev)
	}
}

func TestChangeHandlerRejectsMalformedPayload(t *testing.T) {
	pulser := &fakePulser{}
	reg := NewChangeHandler(pulser, zap.NewNop(), testHandlerConfig())

	msg := messaging.Message{Topic: "store.changes", Value: []byte("{not json")}
	if err := reg.Handler(context.Background(), msg); err == nil {
		t.Fatal("expected a decode error")
	}
	if len(pulser.events) != 0 {
		t.Fatal("a malformed payload must not reach the debouncer")
	}
}

func TestChangeHandlerForwardsReferenceTables(t *testing.T) {
	pulser := &fakePulser{}
	reg := NewChangeHandler(pulser, zap.NewNop(), testHandlerConfig())

	msg := messaging.Message{
		Topic: "store.changes",
		Value: []byte(`{"table":"drivers","operation":"insert"}`),
	}
	if err := reg.Handler(context.Background(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(pulser.events) != 1 || pulser.events[0].Table != "drivers" {
		t.Fatalf("events = %+v, want one drivers event", pulser.events)
	}
}
