package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandlerFormatsComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	handler := newPrettyHandler(&buf, lvl, false)
	logger := slog.New(handler).With(String(FieldComponent, "history"))

	logger.Info("entry closed",
		Uint64(FieldNotificationID, 7),
		String(FieldReason, "expired"))

	line := buf.String()
	if !strings.Contains(line, " INFO history: entry closed") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "notification_id=7") {
		t.Fatalf("missing notification id attr: %q", line)
	}
	if !strings.Contains(line, "reason=expired") {
		t.Fatalf("missing reason attr: %q", line)
	}
}

func TestPrettyHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	logger.Warn("watcher failed", String("detail", "command not found"))

	if !strings.Contains(buf.String(), `detail="command not found"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	WarnWithContext(logger, "reload failed", "config_reload_failed")

	line := buf.String()
	for _, want := range []string{"event_type=config_reload_failed", "error_hint=", "impact="} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
}

func TestBodySnippetRedactsOutsideDiagnosticMode(t *testing.T) {
	SetDiagnostic(false)
	if got := BodySnippet("private message"); got != "[redacted]" {
		t.Fatalf("expected redaction, got %q", got)
	}

	SetDiagnostic(true)
	t.Cleanup(func() { SetDiagnostic(false) })
	if got := BodySnippet("hello\nworld"); got != "hello world" {
		t.Fatalf("unexpected snippet %q", got)
	}
	long := strings.Repeat("a", 500)
	got := BodySnippet(long)
	if len([]rune(got)) > snippetMaxRunes+1 {
		t.Fatalf("snippet not capped: %d runes", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected truncation marker, got %q", got)
	}
}

func TestNoopHandlerDiscards(t *testing.T) {
	logger := NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("noop logger should report disabled")
	}
}
