package eventbus

import (
	"testing"
	"time"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	bus.Publish(Event{Type: ChannelReady, CID: 3, Payload: ChannelReadyPayload{Filename: "clip.ts"}})

	select {
	case ev := <-sub.Events():
		if ev.Type != ChannelReady || ev.CID != 3 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishFanOutToMultipleSubscribers(t *testing.T) {
	bus := New(4)
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Unsubscribe()
	defer b.Unsubscribe()

	bus.Publish(Event{Type: AllStopped})

	for _, s := range []*Subscriber{a, b} {
		select {
		case ev := <-s.Events():
			if ev.Type != AllStopped {
				t.Fatalf("unexpected event: %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := New(2)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: TranscodeProgress, CID: 1, Payload: TranscodeProgressPayload{Pct: i % 100}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe()
	sub.Unsubscribe()

	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}

	bus.Publish(Event{Type: AllStopped})

	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("expected closed channel, got event %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("channel was not closed")
	}
}
