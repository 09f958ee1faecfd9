package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalid marks configuration validation failures so callers can
// distinguish a bad config from an unreadable one.
var ErrInvalid = errors.New("invalid config")

var validDays = map[string]struct{}{
	"mon": {}, "tue": {}, "wed": {}, "thu": {}, "fri": {}, "sat": {}, "sun": {},
}

var validUrgencies = map[string]struct{}{
	"low": {}, "normal": {}, "critical": {},
}

// Validate ensures the configuration is usable and compiles rule patterns.
func (c *Config) Validate() error {
	if err := c.validateGeneral(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.validateHistory(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.validateDND(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.validateRules(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.validateCommands(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.validateWidgets(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.validateCache(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c *Config) validateGeneral() error {
	if c.General.DefaultTimeoutMs < 0 {
		return errors.New("general.default_timeout_ms must be >= 0")
	}
	if c.General.CriticalTimeoutMs < 0 {
		return errors.New("general.critical_timeout_ms must be >= 0")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateHistory() error {
	if c.History.MaxEntries <= 0 {
		return errors.New("history.max_entries must be positive")
	}
	if c.History.MaxActive <= 0 {
		return errors.New("history.max_active must be positive")
	}
	if c.History.DedupWindowMs < 0 {
		return errors.New("history.dedup_window_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateDND() error {
	for i, win := range c.DND.Windows {
		if _, err := time.Parse("15:04", win.Start); err != nil {
			return fmt.Errorf("dnd.windows[%d].start %q is not HH:MM", i, win.Start)
		}
		if _, err := time.Parse("15:04", win.End); err != nil {
			return fmt.Errorf("dnd.windows[%d].end %q is not HH:MM", i, win.End)
		}
		if win.Start == win.End {
			return fmt.Errorf("dnd.windows[%d] start equals end (%s)", i, win.Start)
		}
		for _, day := range win.Days {
			if _, ok := validDays[day]; !ok {
				return fmt.Errorf("dnd.windows[%d] has unknown day %q", i, day)
			}
		}
	}
	return nil
}

func (c *Config) validateRules() error {
	for i := range c.Rules {
		rule := &c.Rules[i]
		if rule.ForceUrgency != "" {
			if _, ok := validUrgencies[rule.ForceUrgency]; !ok {
				return fmt.Errorf("rule %q: force_urgency must be low, normal, or critical", rule.Name)
			}
		}
		if rule.Match.Urgency != "" {
			if _, ok := validUrgencies[rule.Match.Urgency]; !ok {
				return fmt.Errorf("rule %q: match.urgency must be low, normal, or critical", rule.Name)
			}
		}
		if rule.SetTimeoutMs != nil && *rule.SetTimeoutMs < -1 {
			return fmt.Errorf("rule %q: set_timeout_ms must be >= -1", rule.Name)
		}

		var err error
		if rule.Match.CompiledApp, err = CompilePattern(rule.Match.App); err != nil {
			return fmt.Errorf("rule %q: match.app: %w", rule.Name, err)
		}
		if rule.Match.CompiledSummary, err = CompilePattern(rule.Match.Summary); err != nil {
			return fmt.Errorf("rule %q: match.summary: %w", rule.Name, err)
		}
		if rule.Match.CompiledBody, err = CompilePattern(rule.Match.Body); err != nil {
			return fmt.Errorf("rule %q: match.body: %w", rule.Name, err)
		}
		if rule.Match.CompiledCategory, err = CompilePattern(rule.Match.Category); err != nil {
			return fmt.Errorf("rule %q: match.category: %w", rule.Name, err)
		}
	}
	return nil
}

func (c *Config) validateCommands() error {
	if c.Commands.Workers <= 0 {
		return errors.New("commands.workers must be positive")
	}
	return ensurePositiveMap(map[string]int{
		"commands.fast_timeout_ms":   c.Commands.FastTimeoutMs,
		"commands.slow_timeout_ms":   c.Commands.SlowTimeoutMs,
		"commands.action_timeout_ms": c.Commands.ActionTimeoutMs,
	})
}

func (c *Config) validateWidgets() error {
	if err := ensurePositiveMap(map[string]int{
		"widgets.refresh_fast_ms": c.Widgets.RefreshFastMs,
		"widgets.refresh_slow_ms": c.Widgets.RefreshSlowMs,
	}); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Widgets.Watchers))
	for i, w := range c.Widgets.Watchers {
		if w.Name == "" {
			return fmt.Errorf("widgets.watchers[%d] requires a name", i)
		}
		if _, ok := seen[w.Name]; ok {
			return fmt.Errorf("widgets.watchers has duplicate name %q", w.Name)
		}
		seen[w.Name] = struct{}{}
		if w.StateCmd == "" {
			return fmt.Errorf("watcher %q requires state_cmd", w.Name)
		}
		if w.TimeoutMs < 0 {
			return fmt.Errorf("watcher %q: timeout_ms must be >= 0", w.Name)
		}
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.IconBudgetBytes <= 0 {
		return errors.New("cache.icon_budget_bytes must be positive")
	}
	if c.Cache.ThemeBudgetBytes <= 0 {
		return errors.New("cache.theme_budget_bytes must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
