// Package rules evaluates the configured rule list against incoming
// notifications. Rules run in declaration order against the notification's
// current state, so a rewrite applied by an earlier rule is visible to the
// predicates of every later rule. Suppression is terminal.
package rules

import (
	"log/slog"

	"notisd/internal/config"
	"notisd/internal/logging"
	"notisd/internal/notify"
)

// Verdict accumulates the effects of all matched rules.
type Verdict struct {
	Suppress  bool
	DNDExempt bool
	MuteSound bool
	// Applied lists the names of the rules that matched, in order.
	Applied []string
}

// Engine holds the immutable rule list from one config snapshot.
type Engine struct {
	rules  []config.Rule
	logger *slog.Logger
}

// New builds an engine from compiled rules. The config loader has already
// validated and compiled every pattern, so evaluation cannot fail.
func New(rules []config.Rule, logger *slog.Logger) *Engine {
	return &Engine{
		rules:  rules,
		logger: logging.NewComponentLogger(logger, "rules"),
	}
}

// Evaluate mutates n in place according to the matched rules and returns the
// combined verdict. A suppressing rule stops evaluation immediately; later
// rules never see the notification.
func (e *Engine) Evaluate(n *notify.Notification) Verdict {
	var v Verdict
	for i := range e.rules {
		rule := &e.rules[i]
		if !matches(&rule.Match, n) {
			continue
		}
		v.Applied = append(v.Applied, rule.Name)

		if rule.Suppress {
			v.Suppress = true
			e.logger.Debug("notification suppressed",
				logging.String(logging.FieldRule, rule.Name),
				logging.String("app", n.App),
				logging.Uint64(logging.FieldNotificationID, uint64(n.ID)))
			return v
		}

		applyActions(rule, n, &v)
		e.logger.Debug("rule applied",
			logging.String(logging.FieldRule, rule.Name),
			logging.String("app", n.App))
	}
	return v
}

func applyActions(rule *config.Rule, n *notify.Notification, v *Verdict) {
	if rule.ForceUrgency != "" {
		if u, ok := notify.ParseUrgency(rule.ForceUrgency); ok {
			n.Urgency = u
		}
	}
	if rule.MuteSound {
		v.MuteSound = true
		n.MutedByRule = true
	}
	if rule.DNDExempt {
		v.DNDExempt = true
	}
	if rule.SetSummary != "" {
		n.Summary = rule.SetSummary
	}
	if rule.SetBody != "" {
		n.Body = rule.SetBody
	}
	if rule.SetTimeoutMs != nil {
		n.TimeoutMs = int32(*rule.SetTimeoutMs)
	}
}

func matches(m *config.RuleMatch, n *notify.Notification) bool {
	if !config.MatchPattern(m.App, m.CompiledApp, n.App) {
		return false
	}
	if !config.MatchPattern(m.Summary, m.CompiledSummary, n.Summary) {
		return false
	}
	if !config.MatchPattern(m.Body, m.CompiledBody, n.Body) {
		return false
	}
	if !config.MatchPattern(m.Category, m.CompiledCategory, n.Category) {
		return false
	}
	if m.Urgency != "" {
		want, ok := notify.ParseUrgency(m.Urgency)
		if !ok || want != n.Urgency {
			return false
		}
	}
	return true
}
