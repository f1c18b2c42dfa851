package config

import (
	"reflect"
	"sort"
	"strings"

	logx "taskscheduler/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed top-level sections
// plus safe structured attrs for logging a reload.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.mode", newCfg.Scheduler.Mode),
			logx.String("scheduler.check_interval", newCfg.Scheduler.CheckInterval),
			logx.String("scheduler.shutdown_grace", newCfg.Scheduler.ShutdownGrace),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Float64("logging.error_rate_limit", newCfg.Logging.ErrorRateLimit),
		)
	}

	oTE := derefTaskEngine(oldCfg.TaskEngine)
	nTE := derefTaskEngine(newCfg.TaskEngine)
	if (oldCfg.TaskEngine != nil) != (newCfg.TaskEngine != nil) || !reflect.DeepEqual(oTE, nTE) {
		changed = append(changed, "task_engine")
		attrs = append(attrs,
			logx.Bool("task_engine.present", newCfg.TaskEngine != nil),
			logx.Int("task_engine.workers", nTE.Workers),
			logx.Int("task_engine.queue_size", nTE.QueueSize),
			logx.Int("task_engine.retry_max", nTE.RetryMax),
		)
	}

	if taskNames := diffTasks(oldCfg.Tasks, newCfg.Tasks); len(taskNames) > 0 {
		changed = append(changed, "tasks")
		attrs = append(attrs,
			logx.Int("tasks.changed_count", len(taskNames)),
			logx.Int("tasks.total_count", len(newCfg.Tasks)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefTaskEngine(te *TaskEngineConfig) TaskEngineConfig {
	if te == nil {
		return TaskEngineConfig{}
	}
	return *te
}

// diffTasks returns the names of tasks whose declarative config changed,
// was added, or was removed. Order-insensitive by name.
func diffTasks(oldT, newT []TaskConfig) []string {
	byName := func(ts []TaskConfig) map[string]TaskConfig {
		m := make(map[string]TaskConfig, len(ts))
		for _, t := range ts {
			m[t.Name] = t
		}
		return m
	}
	oldM, newM := byName(oldT), byName(newT)

	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	var changed []string
	for name := range set {
		o, oOK := oldM[name]
		n, nOK := newM[name]
		if oOK != nOK {
			changed = append(changed, name)
			continue
		}
		if !reflect.DeepEqual(normalizeTask(o), normalizeTask(n)) {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}

func normalizeTask(t TaskConfig) TaskConfig {
	t.Priority = strings.ToLower(strings.TrimSpace(t.Priority))
	return t
}
