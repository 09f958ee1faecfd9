package dnd

import (
	"testing"
	"time"

	"notisd/internal/config"
	"notisd/internal/logging"
	"notisd/internal/notify"
)

// fixedClock pins the scheduler to a known instant. 2026-01-07 is a
// Wednesday.
func fixedClock(s *Scheduler, hour, minute int, day time.Weekday) {
	base := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	offset := int(day - base.Weekday())
	at := base.AddDate(0, 0, offset).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	s.mu.Lock()
	s.now = func() time.Time { return at }
	s.mu.Unlock()
}

func newScheduler(t *testing.T, windows ...config.DNDWindow) *Scheduler {
	t.Helper()
	s := New(logging.NewNop(), nil)
	if err := s.ApplyConfig(config.DND{Windows: windows}); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	return s
}

func TestManualToggle(t *testing.T) {
	s := newScheduler(t)
	if s.Active() {
		t.Fatal("fresh scheduler should be off")
	}
	if !s.Toggle() {
		t.Fatal("toggle should enable")
	}
	if s.Mode() != ModeManual {
		t.Fatalf("mode = %v", s.Mode())
	}
	if s.Toggle() {
		t.Fatal("toggle should disable")
	}
	if s.Mode() != ModeOff {
		t.Fatalf("mode = %v", s.Mode())
	}
}

func TestScheduledWindow(t *testing.T) {
	s := newScheduler(t, config.DNDWindow{Start: "22:00", End: "23:00"})

	fixedClock(s, 21, 59, time.Wednesday)
	s.recompute()
	if s.Active() {
		t.Fatal("before window start")
	}

	fixedClock(s, 22, 30, time.Wednesday)
	s.recompute()
	if !s.Active() {
		t.Fatal("inside window")
	}
	if s.Mode() != ModeScheduled {
		t.Fatalf("mode = %v", s.Mode())
	}

	fixedClock(s, 23, 0, time.Wednesday)
	s.recompute()
	if s.Active() {
		t.Fatal("window end is exclusive")
	}
}

func TestWindowSpansMidnight(t *testing.T) {
	s := newScheduler(t, config.DNDWindow{Start: "22:30", End: "07:00", Days: []string{"wed"}})

	fixedClock(s, 23, 0, time.Wednesday)
	s.recompute()
	if !s.Active() {
		t.Fatal("late Wednesday should be inside the window")
	}

	// Early Thursday still belongs to Wednesday's window.
	fixedClock(s, 6, 0, time.Thursday)
	s.recompute()
	if !s.Active() {
		t.Fatal("early Thursday should still be quiet hours")
	}

	fixedClock(s, 6, 0, time.Saturday)
	s.recompute()
	if s.Active() {
		t.Fatal("Saturday morning is outside the Wednesday window")
	}
}

func TestManualWinsOverSchedule(t *testing.T) {
	s := newScheduler(t, config.DNDWindow{Start: "22:00", End: "23:00"})
	fixedClock(s, 22, 30, time.Monday)
	s.SetManual(true)
	if s.Mode() != ModeManual {
		t.Fatalf("mode = %v, manual must take precedence", s.Mode())
	}

	// Releasing the override inside the window stays active via schedule.
	s.SetManual(false)
	if !s.Active() || s.Mode() != ModeScheduled {
		t.Fatalf("active=%v mode=%v after manual release inside window", s.Active(), s.Mode())
	}
}

func TestOnChangeFiresOnTransitions(t *testing.T) {
	var calls []bool
	s := New(logging.NewNop(), func(active bool, _ Mode) { calls = append(calls, active) })

	s.SetManual(true)
	s.SetManual(true) // no transition
	s.SetManual(false)

	if len(calls) != 2 || !calls[0] || calls[1] {
		t.Fatalf("calls = %v, want [true false]", calls)
	}
}

func TestShouldPresent(t *testing.T) {
	s := newScheduler(t)
	s.SetManual(true)

	normal := &notify.Notification{Urgency: notify.UrgencyNormal}
	if s.ShouldPresent(normal, false) {
		t.Fatal("normal notification must be muted under DND")
	}
	critical := &notify.Notification{Urgency: notify.UrgencyCritical}
	if !s.ShouldPresent(critical, false) {
		t.Fatal("critical pierces DND")
	}
	if !s.ShouldPresent(normal, true) {
		t.Fatal("rule exemption pierces DND")
	}
	bypass := &notify.Notification{DNDBypass: true}
	if !s.ShouldPresent(bypass, false) {
		t.Fatal("sender bypass hint pierces DND")
	}

	s.SetManual(false)
	if !s.ShouldPresent(normal, false) {
		t.Fatal("everything presents when DND is off")
	}
}

func TestApplyConfigRejectsBadWindow(t *testing.T) {
	s := New(logging.NewNop(), nil)
	err := s.ApplyConfig(config.DND{Windows: []config.DNDWindow{{Start: "22:00", End: "22:00"}}})
	if err == nil {
		t.Fatal("zero-length window must be rejected")
	}
	err = s.ApplyConfig(config.DND{Windows: []config.DNDWindow{{Start: "10:00", End: "11:00", Days: []string{"noday"}}}})
	if err == nil {
		t.Fatal("unknown day must be rejected")
	}
}
