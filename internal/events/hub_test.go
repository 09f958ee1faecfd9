package events

import (
	"context"
	"testing"
	"time"
)

func TestPublishAssignsSequences(t *testing.T) {
	h := NewHub(8)
	h.Publish(Event{Type: TypeHistoryChanged})
	h.Publish(Event{Type: TypeDNDChanged})

	got, next, err := h.Fetch(context.Background(), 0, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 || got[0].Sequence != 1 || got[1].Sequence != 2 {
		t.Fatalf("events = %+v", got)
	}
	if next != 2 {
		t.Fatalf("next = %d", next)
	}
	if got[0].Timestamp.IsZero() {
		t.Fatal("timestamp not assigned")
	}
}

func TestFetchSince(t *testing.T) {
	h := NewHub(8)
	for i := 0; i < 5; i++ {
		h.Publish(Event{Type: TypeHistoryChanged})
	}
	got, _, err := h.Fetch(context.Background(), 3, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 || got[0].Sequence != 4 {
		t.Fatalf("events = %+v", got)
	}
}

func TestRingDropsOldest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 10; i++ {
		h.Publish(Event{Type: TypeHistoryChanged})
	}
	got, _, err := h.Fetch(context.Background(), 0, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 3 || got[0].Sequence != 8 || got[2].Sequence != 10 {
		t.Fatalf("events = %+v", got)
	}
}

func TestFetchWaitWakesOnPublish(t *testing.T) {
	h := NewHub(8)
	done := make(chan []Event, 1)
	go func() {
		got, _, err := h.Fetch(context.Background(), 0, 0, true)
		if err != nil {
			t.Errorf("Fetch: %v", err)
		}
		done <- got
	}()

	time.Sleep(50 * time.Millisecond)
	h.Publish(Event{Type: TypeDNDChanged, DNDActive: true})

	select {
	case got := <-done:
		if len(got) != 1 || got[0].Type != TypeDNDChanged {
			t.Fatalf("events = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch never woke up")
	}
}

func TestFetchWaitHonorsContext(t *testing.T) {
	h := NewHub(8)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := h.Fetch(ctx, 0, 0, true)
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestTail(t *testing.T) {
	h := NewHub(8)
	for i := 0; i < 5; i++ {
		h.Publish(Event{Type: TypeHistoryChanged})
	}
	got, next := h.Tail(2)
	if len(got) != 2 || got[1].Sequence != 5 || next != 5 {
		t.Fatalf("tail = %+v next = %d", got, next)
	}
}
