package expire

import (
	"sync"
	"testing"
	"time"

	"notisd/internal/config"
	"notisd/internal/logging"
	"notisd/internal/notify"
)

type fireRecorder struct {
	mu  sync.Mutex
	ids []uint32
	ch  chan uint32
}

func newFireRecorder() *fireRecorder {
	return &fireRecorder{ch: make(chan uint32, 16)}
}

func (r *fireRecorder) fire(id uint32) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
	r.ch <- id
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func TestScheduleFires(t *testing.T) {
	rec := newFireRecorder()
	s := New(logging.NewNop(), rec.fire)
	defer s.Stop()

	s.Schedule(42, 10*time.Millisecond)
	select {
	case id := <-rec.ch:
		if id != 42 {
			t.Fatalf("fired id = %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	if s.Pending(42) {
		t.Fatal("fired timer should be removed")
	}
}

func TestCancelPreventsFire(t *testing.T) {
	rec := newFireRecorder()
	s := New(logging.NewNop(), rec.fire)
	defer s.Stop()

	s.Schedule(7, 30*time.Millisecond)
	s.Cancel(7)
	time.Sleep(80 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatal("cancelled timer fired")
	}
	// Cancelling an unknown id is a no-op.
	s.Cancel(999)
}

func TestRescheduleReplacesTimer(t *testing.T) {
	rec := newFireRecorder()
	s := New(logging.NewNop(), rec.fire)
	defer s.Stop()

	s.Schedule(1, 20*time.Millisecond)
	s.Schedule(1, 200*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatal("replaced timer fired early")
	}
	select {
	case <-rec.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement timer never fired")
	}
	if rec.count() != 1 {
		t.Fatalf("fires = %d, want exactly 1", rec.count())
	}
}

func TestNonPositiveDurationDisarms(t *testing.T) {
	rec := newFireRecorder()
	s := New(logging.NewNop(), rec.fire)
	defer s.Stop()

	s.Schedule(3, 30*time.Millisecond)
	s.Schedule(3, 0)
	if s.Pending(3) {
		t.Fatal("zero duration must disarm")
	}
	time.Sleep(80 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatal("disarmed timer fired")
	}
}

func TestStopDisarmsAll(t *testing.T) {
	rec := newFireRecorder()
	s := New(logging.NewNop(), rec.fire)
	s.Schedule(1, 20*time.Millisecond)
	s.Schedule(2, 20*time.Millisecond)
	s.Stop()
	s.Schedule(3, 10*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatal("timers fired after Stop")
	}
}

func TestResolveTimeout(t *testing.T) {
	general := config.General{DefaultTimeoutMs: 5000, CriticalTimeoutMs: 0}
	cases := []struct {
		name string
		n    notify.Notification
		want time.Duration
	}{
		{"explicit", notify.Notification{TimeoutMs: 1500}, 1500 * time.Millisecond},
		{"never", notify.Notification{TimeoutMs: 0}, 0},
		{"default normal", notify.Notification{TimeoutMs: -1}, 5 * time.Second},
		{"default critical", notify.Notification{TimeoutMs: -1, Urgency: notify.UrgencyCritical}, 0},
		{"resident ignores explicit", notify.Notification{TimeoutMs: 1500, Resident: true}, 0},
	}
	for _, tc := range cases {
		if got := ResolveTimeout(&tc.n, general); got != tc.want {
			t.Fatalf("%s: ResolveTimeout = %v, want %v", tc.name, got, tc.want)
		}
	}
}
