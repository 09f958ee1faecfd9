// Package command is the only place the daemon spawns external processes.
// It enforces a global concurrency ceiling, per-class timeouts, and forced
// process-group teardown so a wedged probe can never hold a worker slot.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"notisd/internal/config"
	"notisd/internal/logging"
)

var (
	// ErrTimedOut reports a command that exceeded its deadline and was
	// killed.
	ErrTimedOut = errors.New("command timed out")
	// ErrBudgetExhausted reports a rejected run: every worker slot was
	// busy. The caller keeps its last-known-good result.
	ErrBudgetExhausted = errors.New("command budget exhausted")
)

// Class selects which configured timeout applies.
type Class int

const (
	ClassFast Class = iota
	ClassSlow
	ClassAction
)

func (c Class) String() string {
	switch c {
	case ClassSlow:
		return "slow"
	case ClassAction:
		return "action"
	default:
		return "fast"
	}
}

// Result is the outcome of one completed execution.
type Result struct {
	Stdout   string
	ExitCode int
	Duration time.Duration
}

// Budget carries the execution limits from the config snapshot.
type Budget struct {
	Workers       int
	FastTimeout   time.Duration
	SlowTimeout   time.Duration
	ActionTimeout time.Duration
	Jitter        time.Duration
}

// BudgetFromConfig translates the config section.
func BudgetFromConfig(c config.Commands) Budget {
	return Budget{
		Workers:       c.Workers,
		FastTimeout:   time.Duration(c.FastTimeoutMs) * time.Millisecond,
		SlowTimeout:   time.Duration(c.SlowTimeoutMs) * time.Millisecond,
		ActionTimeout: time.Duration(c.ActionTimeoutMs) * time.Millisecond,
		Jitter:        time.Duration(c.JitterMs) * time.Millisecond,
	}
}

// Runner executes external commands under the budget.
type Runner struct {
	logger *slog.Logger
	slots  chan struct{}
	budget Budget
}

// NewRunner builds a runner with Workers concurrent slots.
func NewRunner(logger *slog.Logger, budget Budget) *Runner {
	if budget.Workers <= 0 {
		budget.Workers = 1
	}
	return &Runner{
		logger: logging.NewComponentLogger(logger, "command"),
		slots:  make(chan struct{}, budget.Workers),
		budget: budget,
	}
}

// Timeout returns the configured timeout for a class.
func (r *Runner) Timeout(class Class) time.Duration {
	switch class {
	case ClassSlow:
		return r.budget.SlowTimeout
	case ClassAction:
		return r.budget.ActionTimeout
	default:
		return r.budget.FastTimeout
	}
}

// Jitter returns a random delay in [0, configured jitter) used to desync
// watcher schedules.
func (r *Runner) Jitter() time.Duration {
	if r.budget.Jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(r.budget.Jitter)))
}

// Run executes spec under the class timeout. Acquisition is non-blocking: if
// every slot is busy the call fails immediately with ErrBudgetExhausted
// rather than queueing load. A timeout kills the whole process group and
// returns ErrTimedOut.
func (r *Runner) Run(ctx context.Context, spec string, class Class) (Result, error) {
	select {
	case r.slots <- struct{}{}:
	default:
		r.logger.Debug("run rejected, no free slot", logging.String("command", firstWord(spec)))
		return Result{}, ErrBudgetExhausted
	}
	defer func() { <-r.slots }()

	timeout := r.Timeout(class)
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := Build(runCtx, spec)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res := Result{
		Stdout:   strings.TrimRight(stdout.String(), "\n"),
		Duration: elapsed,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runCtx.Err() == context.DeadlineExceeded {
		logging.WarnWithContext(r.logger, "command killed after timeout", "command_timeout",
			logging.String("command", firstWord(spec)),
			logging.String("class", class.String()),
			logging.Duration("timeout", timeout),
			logging.String(logging.FieldErrorHint, "raise the timeout or replace the probe command"),
			logging.String(logging.FieldImpact, "stale result retained"))
		return res, ErrTimedOut
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit is data for the caller, not a runner error.
			return res, nil
		}
		return res, fmt.Errorf("run %q: %w", firstWord(spec), err)
	}
	return res, nil
}

// Build splits a plain spec into argv directly; anything with shell
// metacharacters goes through sh -c. Either way the child gets its own
// process group and cancellation kills the group, so a probe that forks
// helpers cannot outlive its deadline.
func Build(ctx context.Context, spec string) *exec.Cmd {
	var cmd *exec.Cmd
	if strings.ContainsAny(spec, "|&;<>$`\"'(){}") {
		cmd = exec.CommandContext(ctx, "sh", "-c", spec)
	} else {
		fields := strings.Fields(spec)
		if len(fields) == 0 {
			fields = []string{"true"}
		}
		cmd = exec.CommandContext(ctx, fields[0], fields[1:]...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	return cmd
}

// slowPrograms are probes known to block on hardware or network state and
// therefore get the slow timeout.
var slowPrograms = map[string]struct{}{
	"nmcli":        {},
	"bluetoothctl": {},
	"rfkill":       {},
	"iwctl":        {},
	"upower":       {},
	"playerctl":    {},
	"pactl":        {},
	"wpctl":        {},
}

// Classify picks the timeout class for a probe spec from its program name.
func Classify(spec string) Class {
	program := firstWord(spec)
	if idx := strings.LastIndexByte(program, '/'); idx >= 0 {
		program = program[idx+1:]
	}
	if _, ok := slowPrograms[program]; ok {
		return ClassSlow
	}
	return ClassFast
}

func firstWord(spec string) string {
	fields := strings.Fields(spec)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
