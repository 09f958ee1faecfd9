package watchers

import (
	"context"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"notisd/internal/config"
	"notisd/internal/logging"
)

// runSubsystemMonitor subscribes to kernel uevents for the watcher's
// subsystem (rfkill, bluetooth, power_supply, ...) and refreshes on matching
// events. A connect failure is non-fatal: the watcher reverts to polling.
func (m *Manager) runSubsystemMonitor(ctx context.Context, spec config.WatcherSpec) {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "cannot subscribe to udev events", "udev_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldWatcher, spec.Name),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets"),
			logging.String(logging.FieldImpact, "watcher falls back to polling"))
		m.fallBackToPolling(spec.Name)
		return
	}
	defer conn.Close()

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, subsystemMatcher(spec.Subsystem))
	defer close(monitorQuit)

	m.logger.Debug("udev monitor started",
		logging.String(logging.FieldWatcher, spec.Name),
		logging.String("subsystem", spec.Subsystem))

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-queue:
			if debounce != nil {
				debounce.Stop()
			}
			name := spec.Name
			debounce = time.AfterFunc(watchDebounce, func() { m.refresh(name) })
		case err := <-errs:
			logging.WarnWithContext(m.logger, "udev monitor error", "udev_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldWatcher, spec.Name),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "an update may have been missed"))
		}
	}
}

func subsystemMatcher(subsystem string) netlink.Matcher {
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Env: map[string]string{"SUBSYSTEM": subsystem},
	})
	return rules
}
