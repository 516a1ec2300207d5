package app

import (
	"context"
	"sort"
	"time"

	"idlebot/internal/config"
	"idlebot/internal/storage"
	"idlebot/internal/task/schedule"
	"idlebot/internal/tasks"
	logx "idlebot/pkg/logx"
)

// JobStatus is one configured job with its persisted history.
type JobStatus struct {
	schedule.Entry
	// LastRun is zero when the job has no recorded successful run.
	LastRun time.Time
}

// offline is the config, catalogue and store of a process that never starts
// workers.
type offline struct {
	cfg   *config.Config
	cat   *tasks.Catalog
	store storage.Store
}

func openOffline(cfgPath string) (*offline, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	log := logx.NewConsole("warn")
	tcfg, err := mapTasksConfig(cfg)
	if err != nil {
		return nil, err
	}
	cat := tasks.New(tcfg, log)
	if err := cfg.Validate(cat.Kinds()...); err != nil {
		return nil, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	return &offline{cfg: cfg, cat: cat, store: store}, nil
}

// Inspect reports every configured job's schedule as a fresh start at now
// would see it.
func Inspect(ctx context.Context, cfgPath string, now time.Time) ([]JobStatus, error) {
	o, err := openOffline(cfgPath)
	if err != nil {
		return nil, err
	}
	defer o.store.Close()
	return o.status(ctx, now)
}

func (o *offline) status(ctx context.Context, now time.Time) ([]JobStatus, error) {
	reg, err := buildRegistry(o.cfg, o.cat, now)
	if err != nil {
		return nil, err
	}
	lastRuns, err := o.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	reg.Restore(lastRuns)

	entries := reg.Entries()
	out := make([]JobStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, JobStatus{Entry: e, LastRun: lastRuns[e.Key]})
	}
	return out, nil
}

// Reset forgets persisted run times for keys, or for every key when none are
// given. It returns the keys that had a recorded run.
func Reset(ctx context.Context, cfgPath string, keys ...string) ([]string, error) {
	o, err := openOffline(cfgPath)
	if err != nil {
		return nil, err
	}
	defer o.store.Close()
	return o.reset(ctx, keys...)
}

func (o *offline) reset(ctx context.Context, keys ...string) ([]string, error) {
	lastRuns, err := o.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	var forgotten []string
	if len(keys) == 0 {
		for k := range lastRuns {
			forgotten = append(forgotten, k)
		}
	} else {
		for _, k := range keys {
			if _, ok := lastRuns[k]; ok {
				forgotten = append(forgotten, k)
			}
		}
	}
	sort.Strings(forgotten)

	if err := o.store.Delete(ctx, keys...); err != nil {
		return nil, err
	}
	return forgotten, nil
}
