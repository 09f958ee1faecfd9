package logging

import (
	"strings"
	"sync/atomic"
	"unicode"
)

// snippetMaxRunes caps diagnostic body snippets so logs never carry
// unbounded notification content.
const snippetMaxRunes = 120

var diagnostic atomic.Bool

// SetDiagnostic toggles diagnostic mode for the process. When enabled,
// BodySnippet returns capped, sanitized content instead of a redaction marker.
func SetDiagnostic(enabled bool) {
	diagnostic.Store(enabled)
}

// DiagnosticEnabled reports whether diagnostic mode is active.
func DiagnosticEnabled() bool {
	return diagnostic.Load()
}

// BodySnippet returns a log-safe rendering of notification content. Outside
// diagnostic mode the content is fully redacted.
func BodySnippet(body string) string {
	if !diagnostic.Load() {
		return "[redacted]"
	}
	return Sanitize(body, snippetMaxRunes)
}

// Sanitize strips control characters and truncates to maxRunes.
func Sanitize(value string, maxRunes int) string {
	var b strings.Builder
	count := 0
	truncated := false
	for _, r := range value {
		if count >= maxRunes {
			truncated = true
			break
		}
		if unicode.IsControl(r) {
			if r == '\n' || r == '\t' {
				b.WriteByte(' ')
				count++
			}
			continue
		}
		b.WriteRune(r)
		count++
	}
	out := strings.TrimSpace(b.String())
	if truncated {
		out += "…"
	}
	return out
}
