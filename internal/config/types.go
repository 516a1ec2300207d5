package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Config is the on-disk configuration. Durations are strings ("1s", "20m")
// and are parsed by Validate and the Resolve helpers.
type Config struct {
	ProfileName string          `json:"profile_name"`
	Telegram    TelegramConfig  `json:"telegram"`
	Logging     LoggingConfig   `json:"logging"`
	Scheduler   SchedulerConfig `json:"scheduler"`
	Storage     *StorageConfig  `json:"storage,omitempty"`
	Tasks       TasksConfig     `json:"tasks"`
	Jobs        []JobConfig     `json:"jobs"`
}

type TelegramConfig struct {
	Token    string     `json:"token"`
	// GroupLog is the chat id receiving the Telegram log sink. String so that
	// large negative ids survive YAML round-trips.
	GroupLog FlexString `json:"group_log"`
	// APIURL overrides the Bot API endpoint (self-hosted bot API servers).
	APIURL   string     `json:"api_url"`
}

// FlexString decodes from either a JSON string or a JSON number.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = FlexString(n.String())
	return nil
}

type LoggingConfig struct {
	Level    string             `json:"level"`
	Console  bool               `json:"console"`
	File     LoggingFileConfig  `json:"file"`
	Telegram LoggingTelegramCfg `json:"telegram"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegramCfg struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type SchedulerConfig struct {
	DequeueTimeout string `json:"dequeue_timeout"`
	// FailureAlertAfter is the consecutive-failure count that triggers an
	// error-level alert. 0 means 3; negative disables alerts.
	FailureAlertAfter int        `json:"failure_alert_after"`
	HistorySize       int        `json:"history_size"`
	Idle              IdleConfig `json:"idle"`
}

// IdleConfig describes the idle activity. Task, when set, is a task kind run
// on every tick with Args.
type IdleConfig struct {
	Tick string   `json:"tick"`
	Task string   `json:"task"`
	Args []string `json:"args"`
}

type StorageConfig struct {
	Driver      string `json:"driver"` // file | sqlite | memory | none
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

type TasksConfig struct {
	Profile    ProfileTaskConfig `json:"profile"`
	CommandDir string            `json:"command_dir"`
}

type ProfileTaskConfig struct {
	BaseURL    string  `json:"base_url"`
	UploadURL  string  `json:"upload_url"`
	DataDir    string  `json:"data_dir"`
	Timeout    string  `json:"timeout"`
	RatePerSec float64 `json:"rate_per_sec"`
}

// JobConfig declares one periodic job.
type JobConfig struct {
	Name    string   `json:"name"`
	Task    string   `json:"task"`
	Args    []string `json:"args"`
	Every   string   `json:"every"`
	Key     string   `json:"key"`
	Timeout string   `json:"timeout"`
}
