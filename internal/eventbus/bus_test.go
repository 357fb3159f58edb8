package eventbus

import "testing"

func TestFanoutAndUnsubscribe(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(1)
	defer unsubC()

	b.Publish(Event{Type: QueueDropped})
	b.Publish(Event{Type: ScanFailed}) // dropped for c: buffer full

	if e := <-a; e.Type != QueueDropped || e.Time.IsZero() {
		t.Fatalf("a got %+v", e)
	}
	if e := <-a; e.Type != ScanFailed {
		t.Fatalf("a got %+v", e)
	}
	if e := <-c; e.Type != QueueDropped {
		t.Fatalf("c got %+v", e)
	}
	select {
	case e := <-c:
		t.Fatalf("slow subscriber received %+v", e)
	default:
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatal("channel open after unsubscribe")
	}
	b.Publish(Event{Type: SpawnActivated})
}
