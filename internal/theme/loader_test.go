package theme

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"notisd/internal/cache"
	"notisd/internal/config"
	"notisd/internal/logging"
)

func themedConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ConfigDir = t.TempDir()
	cfg.Theme.WriteIfMissing = true
	return &cfg
}

func TestEnsureFilesWritesDefaults(t *testing.T) {
	cfg := themedConfig(t)
	if err := EnsureFiles(cfg, logging.NewNop()); err != nil {
		t.Fatalf("EnsureFiles: %v", err)
	}
	for _, role := range Roles {
		data, err := os.ReadFile(Path(cfg, role))
		if err != nil {
			t.Fatalf("read %s: %v", role, err)
		}
		if len(data) == 0 {
			t.Fatalf("%s stylesheet is empty", role)
		}
	}
}

func TestEnsureFilesNeverOverwrites(t *testing.T) {
	cfg := themedConfig(t)
	custom := ".popup { color: red; }\n"
	if err := os.WriteFile(Path(cfg, RolePopup), []byte(custom), 0o644); err != nil {
		t.Fatalf("write custom: %v", err)
	}
	if err := EnsureFiles(cfg, logging.NewNop()); err != nil {
		t.Fatalf("EnsureFiles: %v", err)
	}
	data, _ := os.ReadFile(Path(cfg, RolePopup))
	if string(data) != custom {
		t.Fatal("existing stylesheet was overwritten")
	}
}

func TestEnsureFilesDisabled(t *testing.T) {
	cfg := themedConfig(t)
	cfg.Theme.WriteIfMissing = false
	if err := EnsureFiles(cfg, logging.NewNop()); err != nil {
		t.Fatalf("EnsureFiles: %v", err)
	}
	if _, err := os.Stat(Path(cfg, RoleBase)); !os.IsNotExist(err) {
		t.Fatal("files must not be written when write_if_missing is off")
	}
}

func TestPathResolution(t *testing.T) {
	cfg := themedConfig(t)
	if got := Path(cfg, RoleBase); got != filepath.Join(cfg.ConfigDir, "base.css") {
		t.Fatalf("relative path = %q", got)
	}
	cfg.Theme.PanelCSS = "/etc/notisd/panel.css"
	if got := Path(cfg, RolePanel); got != "/etc/notisd/panel.css" {
		t.Fatalf("absolute path = %q", got)
	}
}

func TestLoadValidatesAndCaches(t *testing.T) {
	cfg := themedConfig(t)
	if err := EnsureFiles(cfg, logging.NewNop()); err != nil {
		t.Fatalf("EnsureFiles: %v", err)
	}

	l := NewLoader(logging.NewNop(), 1<<20)
	text, err := l.Load(cfg, RoleBase)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.Contains(text, "{") {
		t.Fatalf("unexpected stylesheet text %q", text)
	}
}

func TestLoadRejectsUnbalancedBraces(t *testing.T) {
	cfg := themedConfig(t)
	if err := os.WriteFile(Path(cfg, RoleBase), []byte(".a { color: red;\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewLoader(logging.NewNop(), 1<<20).Load(cfg, RoleBase)
	if !errors.Is(err, cache.ErrComputeFailed) {
		t.Fatalf("err = %v, want ErrComputeFailed", err)
	}
}

func TestLoadAllSkipsBrokenSheet(t *testing.T) {
	cfg := themedConfig(t)
	if err := EnsureFiles(cfg, logging.NewNop()); err != nil {
		t.Fatalf("EnsureFiles: %v", err)
	}
	if err := os.WriteFile(Path(cfg, RoleWidgets), []byte("}{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	l := NewLoader(logging.NewNop(), 1<<20)
	text, err := l.LoadAll(cfg)
	if err == nil {
		t.Fatal("expected the broken sheet's error to be reported")
	}
	if !strings.Contains(text, ".popup") {
		t.Fatal("usable sheets must still be returned")
	}
}

func TestValidate(t *testing.T) {
	if err := validate(".a { } .b { .nested { } }"); err != nil {
		t.Fatalf("valid css rejected: %v", err)
	}
	if err := validate("}"); err == nil {
		t.Fatal("stray close brace accepted")
	}
	if err := validate(string([]byte{'.', 'a', 0})); err == nil {
		t.Fatal("NUL byte accepted")
	}
}
