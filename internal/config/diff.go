package config

import (
	"reflect"
	"sort"
	"strings"

	"idlebot/internal/task/schedule"
	logx "idlebot/pkg/logx"
)

// liveSections are applied without a restart; everything else is fixed for
// the process lifetime because the job registry is built once.
var liveSections = map[string]bool{"logging": true}

// SummarizeConfigChange returns the changed top-level sections, safe
// structured attrs for logging (never secrets) and the subset of sections
// that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	if oldCfg.ProfileName != newCfg.ProfileName {
		changed = append(changed, "profile_name")
		attrs = append(attrs, logx.String("profile_name", newCfg.ProfileName))
	}

	// Telegram (never log token)
	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		oldCfg.Telegram.GroupLog != newCfg.Telegram.GroupLog ||
		strings.TrimSpace(oldCfg.Telegram.APIURL) != strings.TrimSpace(newCfg.Telegram.APIURL) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(string(newCfg.Telegram.GroupLog)) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.dequeue_timeout", newCfg.Scheduler.DequeueTimeout),
			logx.Int("scheduler.failure_alert_after", newCfg.Scheduler.FailureAlertAfter),
			logx.String("scheduler.idle.tick", newCfg.Scheduler.Idle.Tick),
			logx.String("scheduler.idle.task", newCfg.Scheduler.Idle.Task),
		)
	}

	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nS.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
		)
	}

	if oldCfg.Tasks != newCfg.Tasks {
		changed = append(changed, "tasks")
		attrs = append(attrs,
			logx.Bool("tasks.profile.upload", newCfg.Tasks.Profile.UploadURL != ""),
			logx.String("tasks.profile.data_dir", newCfg.Tasks.Profile.DataDir),
		)
	}

	if added, removed, modified := diffJobs(oldCfg.Jobs, newCfg.Jobs); len(added)+len(removed)+len(modified) > 0 {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.count", len(newCfg.Jobs)),
			logx.Strings("jobs.added", added),
			logx.Strings("jobs.removed", removed),
			logx.Strings("jobs.modified", modified),
		)
	}

	sort.Strings(changed)
	for _, s := range changed {
		if !liveSections[s] {
			restart = append(restart, s)
		}
	}
	return changed, attrs, restart
}

// diffJobs compares job lists by persistence identity.
func diffJobs(oldJobs, newJobs []JobConfig) (added, removed, modified []string) {
	byName := func(js []JobConfig) map[string]JobConfig {
		m := make(map[string]JobConfig, len(js))
		for _, j := range js {
			id := strings.TrimSpace(j.Key)
			if id == "" {
				id = schedule.DeriveKey(strings.TrimSpace(j.Name), j.Args)
			}
			m[id] = j
		}
		return m
	}
	om, nm := byName(oldJobs), byName(newJobs)
	for id, n := range nm {
		o, ok := om[id]
		switch {
		case !ok:
			added = append(added, n.Name)
		case !reflect.DeepEqual(o, n):
			modified = append(modified, n.Name)
		}
	}
	for id, o := range om {
		if _, ok := nm[id]; !ok {
			removed = append(removed, o.Name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(modified)
	return added, removed, modified
}
