package events

import "testing"

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster()
	first := b.Subscribe()
	second := b.Subscribe()
	defer b.Unsubscribe(first)
	defer b.Unsubscribe(second)

	b.Publish(Event{Type: TypeApprovalHeld, SessionID: "s"})

	for _, ch := range []chan Event{first, second} {
		event := <-ch
		if event.Type != TypeApprovalHeld || event.SessionID != "s" {
			t.Fatalf("unexpected event: %+v", event)
		}
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill the buffer and keep publishing; the surplus is dropped.
	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: TypeUserTurn})
	}

	if got := len(ch); got != cap(ch) {
		t.Fatalf("expected full buffer of %d, got %d", cap(ch), got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	b.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}

	// A second unsubscribe is a no-op, not a double close.
	b.Unsubscribe(ch)
}
