package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return err
	}
	if c.Paths.RuntimeDir, err = expandPath(c.Paths.RuntimeDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	if c.General.ReloadDebounceMs <= 0 {
		c.General.ReloadDebounceMs = defaultReloadDebounceMs
	}

	for i := range c.Rules {
		rule := &c.Rules[i]
		rule.Name = strings.TrimSpace(rule.Name)
		if rule.Name == "" {
			rule.Name = fmt.Sprintf("rule-%d", i+1)
		}
		rule.ForceUrgency = strings.ToLower(strings.TrimSpace(rule.ForceUrgency))
		rule.Match.Urgency = strings.ToLower(strings.TrimSpace(rule.Match.Urgency))
	}

	for i := range c.DND.Windows {
		win := &c.DND.Windows[i]
		win.Start = strings.TrimSpace(win.Start)
		win.End = strings.TrimSpace(win.End)
		for j, day := range win.Days {
			win.Days[j] = strings.ToLower(strings.TrimSpace(day))
		}
	}

	for i := range c.Widgets.Watchers {
		w := &c.Widgets.Watchers[i]
		w.Name = strings.TrimSpace(w.Name)
		w.StateCmd = strings.TrimSpace(w.StateCmd)
		w.WatchCmd = strings.TrimSpace(w.WatchCmd)
		w.Subsystem = strings.TrimSpace(w.Subsystem)
		if w.IntervalMs <= 0 {
			w.IntervalMs = c.Widgets.RefreshSlowMs
		}
	}

	c.Theme.BaseCSS = fallbackName(c.Theme.BaseCSS, defaultBaseCSS)
	c.Theme.PopupCSS = fallbackName(c.Theme.PopupCSS, defaultPopupCSS)
	c.Theme.PanelCSS = fallbackName(c.Theme.PanelCSS, defaultPanelCSS)
	c.Theme.WidgetsCSS = fallbackName(c.Theme.WidgetsCSS, defaultWidgetsCSS)

	return nil
}

func fallbackName(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
