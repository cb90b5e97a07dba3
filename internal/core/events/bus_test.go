package events

import (
	"errors"
	"testing"
)

type countingObserver struct {
	delivered int
	lastErr   error
}

func (o *countingObserver) OnDelivered(_ string, handlers int, err error) {
	o.delivered += handlers
	o.lastErr = err
}

func TestPublishSubscribe(t *testing.T) {
	b := NewBus()
	var got []string
	_, err := b.Subscribe(TypeObjectPlaced, func(e Event) error {
		got = append(got, "first:"+e.Type())
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_, _ = b.Subscribe(TypeObjectPlaced, func(e Event) error {
		got = append(got, "second")
		return nil
	})
	_, _ = b.Subscribe(Wildcard, func(e Event) error {
		got = append(got, "any")
		return nil
	})

	if err = b.Publish(NewEvent(TypeObjectPlaced, "test", Entity{Descriptor: "fridge"})); err != nil {
		t.Fatalf("publish: %v", err)
	}
	want := []string{"first:" + TypeObjectPlaced, "second", "any"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCancel(t *testing.T) {
	b := NewBus()
	count := 0
	sub, _ := b.Subscribe("x", func(Event) error { count++; return nil })
	_ = b.Publish(NewEvent("x", "test", nil))
	if err := b.Unsubscribe(sub); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	_ = sub.Cancel()
	_ = b.Publish(NewEvent("x", "test", nil))
	if count != 1 {
		t.Fatalf("handler called %d times after cancel", count)
	}
	if sub.IsActive() {
		t.Fatal("subscription still active")
	}
}

func TestErrorsAreJoined(t *testing.T) {
	b := NewBus()
	errA, errB := errors.New("a"), errors.New("b")
	_, _ = b.Subscribe("x", func(Event) error { return errA })
	_, _ = b.Subscribe("x", func(Event) error { return errB })
	obs := &countingObserver{}
	b.AddObserver(obs)

	err := b.PublishBatch(NewEvent("x", "test", nil), NewEvent("y", "test", nil))
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both errors, got %v", err)
	}
	m := b.Metrics()
	if m.Published != 2 || m.DeliveredHandlers != 2 || m.Errors != 1 {
		t.Fatalf("unexpected metrics %+v", m)
	}
	if obs.delivered != 2 || obs.lastErr != nil {
		t.Fatalf("observer saw %+v", obs)
	}
}
