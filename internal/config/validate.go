package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"idlebot/internal/task/schedule"
)

const ProfilePlaceholder = "{profile}"

// Job is a JobConfig with its interval parsed, placeholders expanded and its
// persistence key resolved.
type Job struct {
	Name     string
	Task     string
	Args     []string
	Every    time.Duration
	Timeout  time.Duration
	Key      string
	Explicit bool // Key came from config
}

// Validate reports every startup configuration error at once. knownTasks,
// when non-empty, is the set of valid task kinds.
func (c *Config) Validate(knownTasks ...string) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(c.ProfileName) == "" {
		errs = append(errs, errors.New("profile_name is required"))
	}

	if _, err := ParseDurationField("scheduler.dequeue_timeout", c.Scheduler.DequeueTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("scheduler.idle.tick", c.Scheduler.Idle.Tick); err != nil {
		errs = append(errs, err)
	}
	if t := strings.TrimSpace(c.Scheduler.Idle.Task); t != "" && !knownKind(t, knownTasks) {
		errs = append(errs, fmt.Errorf("scheduler.idle.task: unknown task kind %q", t))
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := ParseDurationField("tasks.profile.timeout", c.Tasks.Profile.Timeout); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			errs = append(errs, errors.New("logging.telegram.enabled requires telegram.token"))
		}
		if _, err := c.GroupLogChatID(); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := c.ResolveJobs(knownTasks...); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ResolveJobs expands the jobs list. Duplicate keys are an error because two
// jobs sharing a key would overwrite each other's last-run time.
func (c *Config) ResolveJobs(knownTasks ...string) ([]Job, error) {
	var errs []error
	out := make([]Job, 0, len(c.Jobs))
	seen := map[string]int{}
	for i, jc := range c.Jobs {
		where := fmt.Sprintf("jobs[%d]", i)
		name := strings.TrimSpace(jc.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", where))
			continue
		}
		where = fmt.Sprintf("jobs[%d] (%s)", i, name)

		task := strings.ToLower(strings.TrimSpace(jc.Task))
		if task == "" {
			errs = append(errs, fmt.Errorf("%s: task is required", where))
		} else if !knownKind(task, knownTasks) {
			errs = append(errs, fmt.Errorf("%s: unknown task kind %q", where, jc.Task))
		}

		iv, err := schedule.ParseInterval(jc.Every)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: every: %w", where, err))
		}
		timeout, err := ParseDurationField(where+": timeout", jc.Timeout)
		if err != nil {
			errs = append(errs, err)
		}

		args := make([]string, len(jc.Args))
		for k, a := range jc.Args {
			args[k] = strings.ReplaceAll(a, ProfilePlaceholder, c.ProfileName)
		}

		j := Job{Name: name, Task: task, Args: args, Every: iv.Every, Timeout: timeout}
		if k := strings.TrimSpace(jc.Key); k != "" {
			j.Key, j.Explicit = k, true
		} else {
			j.Key = schedule.DeriveKey(name, args)
		}
		if prev, dup := seen[j.Key]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate job key %q (also used by jobs[%d]); set an explicit key:", where, j.Key, prev))
			continue
		}
		seen[j.Key] = i
		out = append(out, j)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// GroupLogChatID parses telegram.group_log; 0 when unset.
func (c *Config) GroupLogChatID() (int64, error) {
	s := strings.TrimSpace(string(c.Telegram.GroupLog))
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram.group_log: invalid chat id %q", s)
	}
	return id, nil
}

func knownKind(kind string, known []string) bool {
	if len(known) == 0 {
		return true
	}
	for _, k := range known {
		if strings.EqualFold(k, kind) {
			return true
		}
	}
	return false
}
