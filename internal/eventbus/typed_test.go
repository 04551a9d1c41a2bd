package eventbus

import (
	"sync"
	"testing"
)

func TestTypedBusPublishSubscribe(t *testing.T) {
	bus := NewTyped[string]()
	ch := bus.Subscribe()
	bus.Publish("hello")
	v := <-ch
	if v != "hello" {
		t.Fatalf("expected hello got %v", v)
	}
	bus.Unsubscribe(ch)
}

func TestTypedBusClose(t *testing.T) {
	bus := NewTyped[int]()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Publish(1)
	bus.Close()
	if v, ok := <-ch1; !ok || v != 1 {
		t.Fatalf("expected buffered event before close, got %v %v", v, ok)
	}
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	<-ch2
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
	bus.Publish(2)
	if _, ok := <-bus.Subscribe(); ok {
		t.Fatalf("expected subscription after close to be closed")
	}
}

func TestTypedBusUnsubscribeAfterClose(t *testing.T) {
	bus := NewTyped[float64]()
	ch := bus.Subscribe()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Unsubscribe after Close: %v", r)
		}
	}()
	bus.Unsubscribe(ch)
}

func TestTypedBusDropsWhenFull(t *testing.T) {
	bus := NewTyped[int](WithBuffer(2))
	ch := bus.Subscribe()
	for i := 0; i < 5; i++ {
		bus.Publish(i)
	}
	if got := bus.Dropped(); got != 3 {
		t.Fatalf("dropped = %d, want 3", got)
	}
	if v := <-ch; v != 0 {
		t.Fatalf("first event = %d, want 0", v)
	}
}

func TestTypedBusBlockingDeliversAll(t *testing.T) {
	bus := NewTyped[int](WithBuffer(1), WithBlocking())
	ch := bus.Subscribe()
	var (
		wg  sync.WaitGroup
		got []int
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for v := range ch {
			got = append(got, v)
		}
	}()
	for i := 0; i < 50; i++ {
		bus.Publish(i)
	}
	bus.Close()
	wg.Wait()
	if len(got) != 50 || bus.Dropped() != 0 {
		t.Fatalf("received %d events, dropped %d", len(got), bus.Dropped())
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("event %d = %d, out of order", i, v)
		}
	}
}
