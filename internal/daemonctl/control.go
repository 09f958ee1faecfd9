// Package daemonctl orchestrates the daemon process from the CLI: launching a
// detached instance, waiting for its socket, and stopping it gracefully with a
// forced kill as the fallback.
package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"notisd/internal/ipc"
)

// ErrDaemonNotRunning indicates the control socket is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
	Diagnostic bool
}

// StartState describes the outcome of EnsureStarted.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// StopResult captures daemon stop outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// Launch starts a detached daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("resolve executable: executable path is empty")
	}

	args := []string{}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	if opts.Diagnostic {
		args = append(args, "--diagnostic")
	}

	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient polls the control socket and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted connects to a running daemon or launches one and waits for it.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	launched := false
	if err != nil {
		if !isDaemonUnavailable(err) {
			return StartResult{}, err
		}
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		return StartResult{}, fmt.Errorf("query daemon status: %w", err)
	}
	result := StartResult{Launched: launched, PID: status.PID}
	if launched {
		result.State = StartStateStarted
	} else {
		result.State = StartStateAlreadyRunning
	}
	return result, nil
}

// ProcessInfo reports whether the control socket is reachable and the daemon
// PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		return true, 0, err
	}
	return true, status.PID, nil
}

// WaitForShutdown waits for the control socket to disappear or report
// not-running.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			lastErr = err
			time.Sleep(200 * time.Millisecond)
			continue
		}
		status, statusErr := client.Status()
		_ = client.Close()
		if statusErr != nil {
			// The daemon tore the connection down mid-shutdown.
			return nil
		}
		if !status.Running {
			return nil
		}
		lastErr = errors.New("daemon still running")
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for shutdown")
	}
	return fmt.Errorf("daemon did not stop: %w", lastErr)
}

// StopAndTerminate requests a graceful stop and force-kills the process if it
// is still alive after gracePeriod.
func StopAndTerminate(socketPath string, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}

	pid := 0
	if status, statusErr := client.Status(); statusErr == nil {
		pid = status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid}
	if resp != nil {
		result.StopAcknowledged = resp.Stopped
	}

	_ = WaitForShutdown(socketPath, gracePeriod)
	alive, livePID, aliveErr := ProcessInfo(socketPath)
	if aliveErr != nil || !alive {
		return result, nil
	}

	if livePID != 0 {
		pid = livePID
	}
	if pid <= 0 {
		return result, errors.New("daemon still running and pid unknown")
	}
	if pid == os.Getpid() {
		return result, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return result, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = pid
	return result, nil
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
