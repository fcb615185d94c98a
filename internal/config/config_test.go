package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Admission.Driver != "memory" || cfg.Admission.DefaultCapacity != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.PingPeriod != 54*time.Second || cfg.WriteWait != 5*time.Second {
		t.Fatalf("unexpected timings: ping=%s write=%s", cfg.PingPeriod, cfg.WriteWait)
	}
}

func TestLoadFileOverridesAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.test.yaml")
	body := `
port: 9090
admission:
  driver: redis
  default_capacity: 4
  rooms:
    lobby: 6
redis:
  addr: cache:6379
`
	if err := os.WriteFile(file, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VOICE_SEND_BUFFER", "8")

	cfg, err := LoadFile(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.Admission.Driver != "redis" || cfg.Admission.DefaultCapacity != 4 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Admission.Rooms["lobby"] != 6 {
		t.Fatalf("rooms = %v", cfg.Admission.Rooms)
	}
	if cfg.Redis.Addr != "cache:6379" {
		t.Fatalf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.SendBuffer != 8 {
		t.Fatalf("env override not applied, send_buffer = %d", cfg.SendBuffer)
	}
}

func TestValidateRejectsBadDrivers(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.bad.yaml")
	body := `
admission:
  driver: postgres
auth:
  driver: ldap
`
	if err := os.WriteFile(file, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := LoadFile(file)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"postgres.dsn", "ldap"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}
