package watchers

import (
	"bufio"
	"context"
	"time"

	"notisd/internal/command"
	"notisd/internal/config"
	"notisd/internal/logging"
)

// watchDebounce coalesces bursts of watch-process output into one refresh.
const watchDebounce = 120 * time.Millisecond

// runWatchProcess keeps a long-running watch command alive and refreshes the
// watcher on its stdout activity. The process is restarted on exit with a
// short backoff; repeated immediate failures revert the watcher to polling.
func (m *Manager) runWatchProcess(ctx context.Context, spec config.WatcherSpec) {
	const (
		restartDelay = time.Second
		maxFailures  = 3
	)
	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		err := m.watchOnce(ctx, spec)
		if ctx.Err() != nil {
			return
		}

		if time.Since(start) < 5*time.Second {
			failures++
		} else {
			failures = 0
		}
		if failures >= maxFailures {
			m.logger.Debug("watch command keeps dying",
				logging.String(logging.FieldWatcher, spec.Name),
				logging.Error(err))
			m.fallBackToPolling(spec.Name)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}

// watchOnce runs one incarnation of the watch process until it exits or ctx
// is cancelled.
func (m *Manager) watchOnce(ctx context.Context, spec config.WatcherSpec) error {
	cmd := command.Build(ctx, spec.WatchCmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		if debounce != nil {
			debounce.Stop()
		}
		name := spec.Name
		debounce = time.AfterFunc(watchDebounce, func() { m.refresh(name) })
	}
	return cmd.Wait()
}
