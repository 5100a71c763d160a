package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
telegram:
  token: "123:abc"
  admin_user_ids: [1, 2]
  poll_timeout: "10s"
storage:
  path: "./bot.db"
upload:
  debounce: "500ms"
broadcast:
  rate_per_sec: 25
stats:
  enabled: true
  schedule: "0 9 * * *"
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("Token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AdminUserIDs) != 2 {
		t.Fatalf("AdminUserIDs = %v", cfg.Telegram.AdminUserIDs)
	}
	if cfg.Broadcast.RatePerSec != 25 {
		t.Fatalf("RatePerSec = %d", cfg.Broadcast.RatePerSec)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	raw := validYAML + "\nmystery_section:\n  foo: 1\n"
	if _, err := Load(writeConfig(t, "config.yaml", raw)); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("STARCAST_TEST_TOKEN", "999:secret")
	raw := strings.Replace(validYAML, `"123:abc"`, `"${STARCAST_TEST_TOKEN}"`, 1)
	cfg, err := Load(writeConfig(t, "config.yaml", raw))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "999:secret" {
		t.Fatalf("Token = %q, want expanded env", cfg.Telegram.Token)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "123:abc", AdminUserIDs: []int64{1}},
			Storage:  StorageConfig{Path: "./bot.db"},
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = " " }, wantErr: true},
		{name: "no admins", mutate: func(c *Config) { c.Telegram.AdminUserIDs = nil }, wantErr: true},
		{name: "missing storage path", mutate: func(c *Config) { c.Storage.Path = "" }, wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.Broadcast.RatePerSec = -1 }, wantErr: true},
		{name: "bad debounce", mutate: func(c *Config) { c.Upload.Debounce = "fast" }, wantErr: true},
		{name: "bad cron spec", mutate: func(c *Config) { c.Stats.Enabled = true; c.Stats.Schedule = "whenever" }, wantErr: true},
		{name: "good cron spec", mutate: func(c *Config) { c.Stats.Enabled = true; c.Stats.Schedule = "*/5 * * * *" }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsAdmin(t *testing.T) {
	t.Parallel()
	cfg := &Config{Telegram: TelegramConfig{AdminUserIDs: []int64{7, 8}}}
	if !cfg.IsAdmin(7) || cfg.IsAdmin(9) {
		t.Fatal("IsAdmin misclassified")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("x", " 500ms ")
	if err != nil || d != 500*time.Millisecond {
		t.Fatalf("ParseDurationField = (%v, %v)", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty = (%v, %v)", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("garbage duration accepted")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 3*time.Second)
	if err != nil || d != 3*time.Second {
		t.Fatalf("default = (%v, %v)", d, err)
	}
	d, err = ParseDurationOrDefault("x", "1s", 3*time.Second)
	if err != nil || d != time.Second {
		t.Fatalf("explicit = (%v, %v)", d, err)
	}
}
