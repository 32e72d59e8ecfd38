package event

import (
	"testing"

	"github.com/agentdeck/agentdeck/pkg/protocol"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var received []protocol.Event
	unsub := bus.Subscribe(protocol.EventAgentStart, func(ev protocol.Event) {
		received = append(received, ev)
	})
	defer unsub()

	bus.Publish(protocol.Event{Type: protocol.EventAgentStart})
	bus.Publish(protocol.Event{Type: protocol.EventAgentEnd})

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Type != protocol.EventAgentStart {
		t.Errorf("expected agent_start, got %v", received[0].Type)
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int
	unsub := bus.SubscribeAll(func(ev protocol.Event) { count++ })
	defer unsub()

	bus.Publish(protocol.Event{Type: protocol.EventAgentStart})
	bus.Publish(protocol.Event{Type: protocol.EventMessageStart})
	bus.Publish(protocol.Event{Type: protocol.EventAgentEnd})

	if count != 3 {
		t.Errorf("expected 3 events, got %d", count)
	}
}

func TestBus_PublishPreservesOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var order []protocol.EventType
	unsub := bus.SubscribeAll(func(ev protocol.Event) {
		order = append(order, ev.Type)
	})
	defer unsub()

	sequence := []protocol.EventType{
		protocol.EventAgentStart,
		protocol.EventMessageStart,
		protocol.EventMessageUpdate,
		protocol.EventMessageEnd,
		protocol.EventAgentEnd,
	}
	for _, typ := range sequence {
		bus.Publish(protocol.Event{Type: typ})
	}

	if len(order) != len(sequence) {
		t.Fatalf("expected %d events, got %d", len(sequence), len(order))
	}
	for i, typ := range sequence {
		if order[i] != typ {
			t.Errorf("position %d: expected %v, got %v", i, typ, order[i])
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int
	unsub := bus.SubscribeAll(func(ev protocol.Event) { count++ })

	bus.Publish(protocol.Event{Type: protocol.EventAgentStart})
	unsub()
	bus.Publish(protocol.Event{Type: protocol.EventAgentEnd})

	if count != 1 {
		t.Errorf("expected 1 event after unsubscribe, got %d", count)
	}
}

func TestBus_ClosedBusDropsEvents(t *testing.T) {
	bus := NewBus()

	var count int
	bus.SubscribeAll(func(ev protocol.Event) { count++ })

	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	bus.Publish(protocol.Event{Type: protocol.EventAgentStart})

	if count != 0 {
		t.Errorf("expected no events after close, got %d", count)
	}
}
