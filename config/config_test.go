package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("listen addr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.PendingSellTTL != time.Hour {
		t.Errorf("pending TTL = %s, want 1h", cfg.PendingSellTTL)
	}
	if cfg.SweepInterval != time.Minute {
		t.Errorf("sweep interval = %s, want 1m", cfg.SweepInterval)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TONPAD_LISTEN_ADDR", ":9090")
	t.Setenv("TONPAD_PENDING_TTL", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("listen addr = %q, want :9090", cfg.ListenAddr)
	}
	if cfg.PendingSellTTL != 30*time.Minute {
		t.Errorf("pending TTL = %s, want 30m", cfg.PendingSellTTL)
	}
}

func TestDotEnvFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.WriteFile(".env", []byte("TONPAD_LISTEN_ADDR=:7070\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// t.Setenv arranges restoration; the variable must be unset for the
	// .env value to apply.
	t.Setenv("TONPAD_LISTEN_ADDR", "placeholder")
	os.Unsetenv("TONPAD_LISTEN_ADDR")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Errorf("listen addr = %q, want :7070", cfg.ListenAddr)
	}
}

func TestMalformedDotEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.WriteFile(".env", []byte("NOT A VALID LINE\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed .env")
	}
}

func TestBadDuration(t *testing.T) {
	t.Setenv("TONPAD_SWEEP_INTERVAL", "often")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparseable duration")
	}

	t.Setenv("TONPAD_SWEEP_INTERVAL", "-5s")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-positive duration")
	}
}
