package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"idlebot/internal/config"
	"idlebot/internal/storage"
	"idlebot/internal/task/engine"
	"idlebot/internal/task/schedule"
	"idlebot/internal/tasks"
	logx "idlebot/pkg/logx"
)

const defaultSQLitePath = "data/job_history.db"

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{Driver: "file"}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "file", "json":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			path = defaultSQLitePath
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "memory", "none":
		return storage.Config{Driver: "memory"}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapTasksConfig(cfg *config.Config) (tasks.Config, error) {
	p := cfg.Tasks.Profile
	timeout, err := config.ParseDurationOrDefault("tasks.profile.timeout", p.Timeout, 10*time.Second)
	if err != nil {
		return tasks.Config{}, err
	}
	return tasks.Config{
		Profile: tasks.ProfileConfig{
			BaseURL:    strings.TrimSpace(p.BaseURL),
			UploadURL:  strings.TrimSpace(p.UploadURL),
			DataDir:    strings.TrimSpace(p.DataDir),
			Timeout:    timeout,
			RatePerSec: p.RatePerSec,
		},
		CommandDir: strings.TrimSpace(cfg.Tasks.CommandDir),
	}, nil
}

// mapEngineConfig maps the scheduler section. The idle activity is wired
// separately because it needs the task catalogue.
func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	dq, err := config.ParseDurationOrDefault("scheduler.dequeue_timeout", cfg.Scheduler.DequeueTimeout, time.Second)
	if err != nil {
		return engine.Config{}, err
	}
	if cfg.Scheduler.HistorySize < 0 {
		return engine.Config{}, fmt.Errorf("scheduler.history_size must be >= 0")
	}
	return engine.Config{
		DequeueTimeout: dq,
		HistorySize:    cfg.Scheduler.HistorySize,
	}, nil
}

// buildIdle returns the idle activity: a ticker that optionally runs one
// catalogue task on every tick.
func buildIdle(cfg *config.Config, cat *tasks.Catalog, log logx.Logger) (engine.IdleActivity, error) {
	tick, err := config.ParseDurationOrDefault("scheduler.idle.tick", cfg.Scheduler.Idle.Tick, time.Second)
	if err != nil {
		return nil, err
	}
	idle := engine.TickIdle{Tick: tick, Log: log}
	if kind := strings.TrimSpace(cfg.Scheduler.Idle.Task); kind != "" {
		fn, err := cat.Resolve(kind, "idle")
		if err != nil {
			return nil, fmt.Errorf("scheduler.idle.task: %w", err)
		}
		args := make([]string, len(cfg.Scheduler.Idle.Args))
		for i, a := range cfg.Scheduler.Idle.Args {
			args[i] = strings.ReplaceAll(a, config.ProfilePlaceholder, cfg.ProfileName)
		}
		idle.Step = func(ctx context.Context) error { return fn(ctx, args...) }
	}
	return idle, nil
}

// buildRegistry resolves every configured job against the catalogue and
// cold-starts the registry at now.
func buildRegistry(cfg *config.Config, cat *tasks.Catalog, now time.Time) (*schedule.Registry, error) {
	jobs, err := cfg.ResolveJobs(cat.Kinds()...)
	if err != nil {
		return nil, err
	}
	specs := make([]schedule.Spec, 0, len(jobs))
	for _, j := range jobs {
		fn, err := cat.Resolve(j.Task, j.Name)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", j.Name, err)
		}
		specs = append(specs, schedule.Spec{
			Name:     j.Name,
			Task:     j.Task,
			Func:     fn,
			Args:     j.Args,
			Interval: j.Every,
			Timeout:  j.Timeout,
			Key:      j.Key,
		})
	}
	return schedule.NewRegistry(now, specs...)
}
