package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config is the bot configuration. All durations are Go duration strings
// (e.g. "500ms", "10s"). Unknown keys are rejected at load time.
type Config struct {
	Telegram      TelegramConfig      `json:"telegram"`
	Logging       LoggingConfig       `json:"logging"`
	Storage       StorageConfig       `json:"storage"`
	Upload        UploadConfig        `json:"upload"`
	Broadcast     BroadcastConfig     `json:"broadcast"`
	Stats         StatsConfig         `json:"stats"`
	Observability ObservabilityConfig `json:"observability"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	AdminUserIDs []int64 `json:"admin_user_ids"`
	PollTimeout  string  `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type UploadConfig struct {
	// Debounce is how long the aggregator waits after the last file of an
	// album before finalizing the batch.
	Debounce string `json:"debounce,omitempty"`
}

type BroadcastConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
	QueueSize  int `json:"queue_size,omitempty"`
}

type StatsConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron spec, default "0 9 * * *"
}

type ObservabilityConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:9090"
}

// Validate checks the parts that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if len(c.Telegram.AdminUserIDs) == 0 {
		return errors.New("telegram.admin_user_ids must name at least one operator")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if c.Broadcast.RatePerSec < 0 {
		return errors.New("broadcast.rate_per_sec must be >= 0")
	}
	for _, p := range []struct {
		path, raw string
	}{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"upload.debounce", c.Upload.Debounce},
	} {
		if _, err := ParseDurationField(p.path, p.raw); err != nil {
			return err
		}
	}
	if c.Stats.Enabled && strings.TrimSpace(c.Stats.Schedule) != "" {
		if err := validateCronSpec(c.Stats.Schedule); err != nil {
			return fmt.Errorf("stats.schedule: %w", err)
		}
	}
	return nil
}

func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Telegram.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
