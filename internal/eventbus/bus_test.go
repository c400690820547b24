package eventbus

import "testing"

func TestPublishFanout(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	Publish(b, TypeRefreshCompleted, "x")

	for i, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != TypeRefreshCompleted || e.Data != "x" {
			t.Fatalf("subscriber %d got %+v", i, e)
		}
		if e.Time.IsZero() {
			t.Fatalf("subscriber %d: event time not set", i)
		}
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"}) // dropped, must not block

	if e := <-ch; e.Type != "a" {
		t.Fatalf("got %q, want a", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %+v", e)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	// Publishing after unsubscribe is fine.
	b.Publish(Event{Type: "late"})
	Publish(nil, "ignored", nil)
}
