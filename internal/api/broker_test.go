package api

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	topic := "batch.created"
	ch := b.Subscribe(topic)

	evt := Event{Type: "batch.created", Data: map[string]any{"batchId": "b1"}}
	b.Publish(topic, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["batchId"].(string) != "b1" {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(topic, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerTopicsAreIsolated(t *testing.T) {
	b := NewBroker()
	batches := b.Subscribe("batch.created")
	routes := b.Subscribe("route.optimized")

	b.Publish("route.optimized", Event{Type: "route.optimized", Data: map[string]any{"batchId": "b1"}})

	select {
	case <-batches:
		t.Fatal("batch subscriber received a route event")
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case got := <-routes:
		if got.Type != "route.optimized" {
			t.Fatalf("got %s", got.Type)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for route event")
	}
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("batch.created")
	// fill the buffer past capacity; publish must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 32; i++ {
			b.Publish("batch.created", Event{Type: "batch.created"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	_ = ch
}

func newTestRedisBroker(t *testing.T) *RedisBroker {
	t.Helper()
	srv := miniredis.RunT(t)
	b, err := NewRedisBroker("redis://" + srv.Addr())
	if err != nil {
		t.Fatalf("broker: %v", err)
	}
	return b
}

func TestRedisBrokerPublishSubscribe(t *testing.T) {
	b := newTestRedisBroker(t)
	ch := b.Subscribe("route.optimized")
	defer b.Unsubscribe("route.optimized", ch)

	b.Publish("route.optimized", Event{Type: "route.optimized", Data: map[string]any{"batchId": "b1"}})

	select {
	case got := <-ch:
		if got.Type != "route.optimized" {
			t.Fatalf("got type %s", got.Type)
		}
		if got.Data["batchId"].(string) != "b1" {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestRedisBrokerPublishAfterUnsubscribe(t *testing.T) {
	b := newTestRedisBroker(t)
	ch := b.Subscribe("batch.created")
	b.Unsubscribe("batch.created", ch)

	// a publish after unsubscribe must not reach the dropped subscriber
	b.Publish("batch.created", Event{Type: "batch.created", Data: map[string]any{"batchId": "b1"}})

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel never closed after unsubscribe")
		}
	}
}
