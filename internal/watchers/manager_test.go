package watchers

import (
	"context"
	"sync"
	"testing"
	"time"

	"notisd/internal/command"
	"notisd/internal/config"
	"notisd/internal/logging"
)

type fakeRunner struct {
	mu    sync.Mutex
	out   map[string]string
	fail  map[string]error
	delay time.Duration
	calls map[string]int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		out:   make(map[string]string),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeRunner) Run(ctx context.Context, spec string, _ command.Class) (command.Result, error) {
	f.mu.Lock()
	f.calls[spec]++
	out := f.out[spec]
	err := f.fail[spec]
	delay := f.delay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return command.Result{}, command.ErrTimedOut
		}
	}
	if err != nil {
		return command.Result{}, err
	}
	return command.Result{Stdout: out}, nil
}

func (f *fakeRunner) Jitter() time.Duration { return 0 }

func (f *fakeRunner) callCount(spec string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[spec]
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func pollSpec(name, cmd string, interval int) config.WatcherSpec {
	return config.WatcherSpec{Name: name, StateCmd: cmd, IntervalMs: interval, Enabled: true}
}

func TestProbePublishesResult(t *testing.T) {
	runner := newFakeRunner()
	runner.out["nmcli state"] = "connected"
	board := NewBoard(nil)
	m := NewManager(logging.NewNop(), runner, board)
	defer m.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, []config.WatcherSpec{pollSpec("net", "nmcli state", 60000)})

	waitFor(t, func() bool {
		res, ok := board.Get("net")
		return ok && res.Value == "connected" && !res.Stale
	}, "probe result never published")
}

func TestFailedProbeRetainsStaleValue(t *testing.T) {
	runner := newFakeRunner()
	runner.out["probe"] = "good"
	board := NewBoard(nil)
	m := NewManager(logging.NewNop(), runner, board)
	defer m.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, []config.WatcherSpec{pollSpec("w", "probe", 30)})

	waitFor(t, func() bool {
		res, ok := board.Get("w")
		return ok && res.Value == "good"
	}, "initial value never published")

	runner.mu.Lock()
	runner.fail["probe"] = command.ErrTimedOut
	runner.mu.Unlock()

	waitFor(t, func() bool {
		res, _ := board.Get("w")
		return res.Stale
	}, "failure never marked the value stale")

	res, _ := board.Get("w")
	if res.Value != "good" {
		t.Fatalf("stale value = %q, last-known-good must be retained", res.Value)
	}
}

func TestPauseStopsSchedulingAndDiscardsInflight(t *testing.T) {
	runner := newFakeRunner()
	runner.out["slow"] = "value"
	runner.delay = 100 * time.Millisecond
	board := NewBoard(nil)
	m := NewManager(logging.NewNop(), runner, board)
	defer m.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, []config.WatcherSpec{pollSpec("w", "slow", 20)})

	waitFor(t, func() bool { return runner.callCount("slow") >= 1 }, "probe never started")
	m.Pause()

	// The in-flight probe finishes after the pause; its result must be
	// discarded and nothing further scheduled.
	time.Sleep(300 * time.Millisecond)
	if _, ok := board.Get("w"); ok {
		t.Fatal("in-flight result must be discarded across a pause")
	}
	callsAfterPause := runner.callCount("slow")
	time.Sleep(200 * time.Millisecond)
	if runner.callCount("slow") != callsAfterPause {
		t.Fatal("paused watcher kept scheduling probes")
	}

	runner.mu.Lock()
	runner.delay = 0
	runner.mu.Unlock()
	m.Resume()
	waitFor(t, func() bool {
		res, ok := board.Get("w")
		return ok && res.Value == "value"
	}, "resume never refreshed the watcher")
}

func TestApplyConfigRemovesWatcher(t *testing.T) {
	runner := newFakeRunner()
	runner.out["a"] = "1"
	runner.out["b"] = "2"
	board := NewBoard(nil)
	m := NewManager(logging.NewNop(), runner, board)
	defer m.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, []config.WatcherSpec{
		pollSpec("first", "a", 60000),
		pollSpec("second", "b", 60000),
	})
	waitFor(t, func() bool {
		_, ok1 := board.Get("first")
		_, ok2 := board.Get("second")
		return ok1 && ok2
	}, "watchers never published")

	m.ApplyConfig([]config.WatcherSpec{pollSpec("first", "a", 60000)})
	if _, ok := board.Get("second"); ok {
		t.Fatal("removed watcher's result must be dropped")
	}
	if _, ok := board.Get("first"); !ok {
		t.Fatal("surviving watcher lost its result")
	}
}

func TestDisabledWatcherNotScheduled(t *testing.T) {
	runner := newFakeRunner()
	board := NewBoard(nil)
	m := NewManager(logging.NewNop(), runner, board)
	defer m.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	spec := pollSpec("off", "cmd", 10)
	spec.Enabled = false
	m.Start(ctx, []config.WatcherSpec{spec})

	time.Sleep(100 * time.Millisecond)
	if runner.callCount("cmd") != 0 {
		t.Fatal("disabled watcher ran")
	}
}

func TestWatchCommandTriggersRefresh(t *testing.T) {
	runner := newFakeRunner()
	runner.out["state"] = "fresh"
	board := NewBoard(nil)
	m := NewManager(logging.NewNop(), runner, board)
	defer m.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, []config.WatcherSpec{{
		Name:       "net",
		StateCmd:   "state",
		WatchCmd:   "echo change; sleep 60",
		IntervalMs: 60000,
		Enabled:    true,
	}})

	// Initial probe plus one refresh from the watch line after debounce.
	waitFor(t, func() bool { return runner.callCount("state") >= 2 }, "watch output never triggered a refresh")
}

func TestBoardOnUpdateFires(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	board := NewBoard(func(r Result) {
		mu.Lock()
		seen = append(seen, r.Name)
		mu.Unlock()
	})
	board.Set("x", "1", 0)
	board.MarkStale("x")
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("updates = %v", seen)
	}
}

func TestBoardSnapshotSorted(t *testing.T) {
	board := NewBoard(nil)
	board.Set("zeta", "1", 0)
	board.Set("alpha", "2", 0)
	snap := board.Snapshot()
	if len(snap) != 2 || snap[0].Name != "alpha" || snap[1].Name != "zeta" {
		t.Fatalf("snapshot = %+v", snap)
	}
}
