package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetDuration(t *testing.T) {
	r := MapReader{
		"a": "90s",
		"b": 30,
		"c": "45",
		"d": 2 * time.Minute,
	}
	cases := map[string]time.Duration{
		"a":       90 * time.Second,
		"b":       30 * time.Second,
		"c":       45 * time.Second,
		"d":       2 * time.Minute,
		"missing": time.Minute,
	}
	for key, want := range cases {
		if got := GetDuration(r, key, time.Minute); got != want {
			t.Errorf("GetDuration(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestMapReaderDefaults(t *testing.T) {
	r := MapReader{KeyMaintenanceMode: true, KeyTwoFactorMethods: []interface{}{"Totp", "EmailCode"}}
	if !GetBool(r, KeyMaintenanceMode, false) {
		t.Fatalf("expected maintenance mode to be set")
	}
	if GetInt(r, KeyMaxFailedAttempts, 10) != 10 {
		t.Fatalf("expected default max failed attempts")
	}
	methods := GetStringSlice(r, KeyTwoFactorMethods, nil)
	if len(methods) != 2 || methods[0] != "Totp" {
		t.Fatalf("unexpected two factor methods %v", methods)
	}
}

func TestLoadConfig(t *testing.T) {
	content := `
listenAddr: ":4000"
masterKey: "0123456789abcdef0123456789abcdef"
mysql:
  dsn: "user:pass@tcp(localhost:3306)/kgate"
  replicas:
    - "user:pass@tcp(replica:3306)/kgate"
auth:
  method: Password
  maxFailedAttempts: 5
  failedAttemptsPeriod: 2m
  twoFactor:
    enabled: true
    methods: [Totp]
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.ListenAddr != ":4000" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if len(cfg.MySQL.Replicas) != 1 {
		t.Fatalf("expected one replica, got %v", cfg.MySQL.Replicas)
	}

	r := cfg.Reader()
	if got := GetInt(r, KeyMaxFailedAttempts, 10); got != 5 {
		t.Fatalf("max failed attempts = %d, want 5", got)
	}
	if got := GetDuration(r, KeyFailedAttemptsPeriod, time.Minute); got != 2*time.Minute {
		t.Fatalf("failed attempts period = %v, want 2m", got)
	}
	if !GetBool(r, KeyTwoFactorEnabled, false) {
		t.Fatalf("expected two factor to be enabled")
	}
	if got := GetBool(r, KeyTokenPreventConcurrent, false); got {
		t.Fatalf("expected default for unset key")
	}
}
