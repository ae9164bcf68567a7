package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != "8080" {
		t.Errorf("default port = %q, expected 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("default driver = %q, expected sqlite", cfg.Database.Driver)
	}
	if cfg.Queue.ClaimTimeout != 5*time.Minute {
		t.Errorf("claim timeout = %v, expected 5m", cfg.Queue.ClaimTimeout)
	}
	if cfg.Queue.SLAWindow != 24*time.Hour {
		t.Errorf("SLA window = %v, expected 24h", cfg.Queue.SLAWindow)
	}
	if cfg.Queue.SweepLimit != 25 {
		t.Errorf("sweep limit = %d, expected 25", cfg.Queue.SweepLimit)
	}
	if cfg.Redis.Enabled {
		t.Error("redis should be disabled by default")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Queue.ClaimTimeout != 5*time.Minute {
		t.Errorf("claim timeout = %v, expected default", cfg.Queue.ClaimTimeout)
	}
}

func TestLoad_PartialQueueSectionGetsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("queue:\n  claim_timeout: 10m\nserver:\n  port: \"9090\"\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Queue.ClaimTimeout != 10*time.Minute {
		t.Errorf("claim timeout = %v, expected 10m from file", cfg.Queue.ClaimTimeout)
	}
	if cfg.Queue.SLAWindow != 24*time.Hour {
		t.Errorf("SLA window = %v, expected default 24h", cfg.Queue.SLAWindow)
	}
	if cfg.Queue.SweepLimit != 25 {
		t.Errorf("sweep limit = %d, expected default 25", cfg.Queue.SweepLimit)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q, expected 9090", cfg.Server.Port)
	}
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != "7000" {
		t.Errorf("port = %q, expected env override 7000", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q, expected postgres", cfg.Database.Driver)
	}
	if cfg.JWT.Secret != "env-secret" {
		t.Errorf("secret not overridden from env")
	}
}

func TestParseRedisURL(t *testing.T) {
	cases := []struct {
		url      string
		addr     string
		password string
		db       int
	}{
		{"redis://localhost:6379/0", "localhost:6379", "", 0},
		{"redis://:secret@redis.host:6380/2", "redis.host:6380", "secret", 2},
		{"redis://user:pw@h:1/1", "h:1", "pw", 1},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		cfg.parseRedisURL(tc.url)
		if cfg.Redis.Addr != tc.addr {
			t.Errorf("%q: addr = %q, expected %q", tc.url, cfg.Redis.Addr, tc.addr)
		}
		if cfg.Redis.Password != tc.password {
			t.Errorf("%q: password = %q, expected %q", tc.url, cfg.Redis.Password, tc.password)
		}
		if cfg.Redis.DB != tc.db {
			t.Errorf("%q: db = %d, expected %d", tc.url, cfg.Redis.DB, tc.db)
		}
	}
}
