package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"notisd/internal/daemonctl"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 5 * time.Second
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the notisd daemon process",
	}

	var logLevelFlag string
	var diagnosticFlag bool

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Launch the daemon if it is not running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			socket, err := ctx.socketPath()
			if err != nil {
				return err
			}
			executable, err := daemonExecutable()
			if err != nil {
				return err
			}
			opts := daemonctl.LaunchOptions{
				LogLevel:   logLevelFlag,
				Diagnostic: diagnosticFlag,
			}
			if ctx.configFlag != nil {
				opts.ConfigPath = strings.TrimSpace(*ctx.configFlag)
			}
			result, err := daemonctl.EnsureStarted(socket, executable, opts, startWaitTimeout)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&logLevelFlag, "log-level", "", "Log level for the launched daemon")
	startCmd.Flags().BoolVar(&diagnosticFlag, "diagnostic", false, "Launch with diagnostic logging")
	cmd.AddCommand(startCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			socket, err := ctx.socketPath()
			if err != nil {
				return err
			}
			result, err := daemonctl.StopAndTerminate(socket, stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon killed (pid %d)\n", result.PID)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			socket, err := ctx.socketPath()
			if err != nil {
				return err
			}
			if _, err := daemonctl.StopAndTerminate(socket, stopGracePeriod); err != nil &&
				!errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				return err
			}
			executable, err := daemonExecutable()
			if err != nil {
				return err
			}
			opts := daemonctl.LaunchOptions{LogLevel: logLevelFlag, Diagnostic: diagnosticFlag}
			if ctx.configFlag != nil {
				opts.ConfigPath = strings.TrimSpace(*ctx.configFlag)
			}
			result, err := daemonctl.EnsureStarted(socket, executable, opts, startWaitTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon restarted (pid %d)\n", result.PID)
			return nil
		},
	})

	return cmd
}

// daemonExecutable resolves the notisd binary: first next to the current
// executable, then on PATH.
func daemonExecutable() (string, error) {
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "notisd")
		if info, statErr := os.Stat(sibling); statErr == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	path, err := exec.LookPath("notisd")
	if err != nil {
		return "", fmt.Errorf("locate notisd executable: %w", err)
	}
	return path, nil
}
