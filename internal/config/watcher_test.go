package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"notisd/internal/config"
	"notisd/internal/logging"
)

func TestStoreReplaceNotifiesSubscribers(t *testing.T) {
	base := config.Default()
	store := config.NewStore(&base)

	got := make(chan *config.Config, 1)
	cancel := store.Subscribe(func(cfg *config.Config) { got <- cfg })
	defer cancel()

	next := config.Default()
	next.General.DefaultTimeoutMs = 1234
	store.Replace(&next)

	select {
	case cfg := <-got:
		if cfg.General.DefaultTimeoutMs != 1234 {
			t.Fatalf("subscriber saw timeout %d", cfg.General.DefaultTimeoutMs)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber not notified")
	}
	if store.Current().General.DefaultTimeoutMs != 1234 {
		t.Fatal("Current should return the replaced snapshot")
	}
}

func TestStoreSubscribeCancel(t *testing.T) {
	base := config.Default()
	store := config.NewStore(&base)
	calls := 0
	cancel := store.Subscribe(func(*config.Config) { calls++ })
	cancel()
	next := config.Default()
	store.Replace(&next)
	if calls != 0 {
		t.Fatalf("cancelled subscriber ran %d times", calls)
	}
}

func TestReloadWatcherAppliesChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[general]\ndefault_timeout_ms = 5000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	store := config.NewStore(cfg)

	changed := make(chan *config.Config, 4)
	cancel := store.Subscribe(func(c *config.Config) { changed <- c })
	defer cancel()

	w := config.NewReloadWatcher(store, path, logging.NewNop())
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("[general]\ndefault_timeout_ms = 9000\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.General.DefaultTimeoutMs == 9000 {
				return
			}
		case <-deadline:
			t.Fatal("reload never applied")
		}
	}
}

func TestReloadWatcherKeepsSnapshotOnBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[general]\ndefault_timeout_ms = 5000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	store := config.NewStore(cfg)

	w := config.NewReloadWatcher(store, path, logging.NewNop())
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("not toml at all ["), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for w.LastError() == nil {
		if time.Now().After(deadline) {
			t.Fatal("reload failure never recorded")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if store.Current().General.DefaultTimeoutMs != 5000 {
		t.Fatal("failed reload must keep the previous snapshot")
	}
}
