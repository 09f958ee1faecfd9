// notisd is the notification daemon. It owns the notification store, rules,
// DND scheduling, and watcher execution, and serves the control and event
// sockets consumed by notis and the panel.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configFlag := flag.String("config", "", "configuration file path")
	logLevelFlag := flag.String("log-level", "", "override the configured log level")
	diagnosticFlag := flag.Bool("diagnostic", false, "log notification content for troubleshooting")
	flag.Parse()

	diagnostic := *diagnosticFlag || os.Getenv("NOTISD_DIAGNOSTIC") == "1"

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configFlag, *logLevelFlag, diagnostic); err != nil {
		log.Fatalf("notisd: %v", err)
	}
}
