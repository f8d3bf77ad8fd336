package config

import (
	"reflect"
	"sort"
	"strings"

	logx "dailyrun/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus structured
// attrs for the reload log, including which task ids were added, removed or
// modified.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 8)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs, logx.String("logging.level", newCfg.LogxConfig().Level))
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.path", newCfg.StoragePath()))
	}
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
	}
	if !reflect.DeepEqual(oldCfg.Clock, newCfg.Clock) {
		changed = append(changed, "clock")
		attrs = append(attrs, logx.String("clock.source", newCfg.Clock.Source))
	}

	if added, removed, modified := diffTasks(oldCfg.Tasks, newCfg.Tasks); len(added)+len(removed)+len(modified) > 0 {
		changed = append(changed, "tasks")
		if len(added) > 0 {
			attrs = append(attrs, logx.String("tasks.added", strings.Join(added, ",")))
		}
		if len(removed) > 0 {
			attrs = append(attrs, logx.String("tasks.removed", strings.Join(removed, ",")))
		}
		if len(modified) > 0 {
			attrs = append(attrs, logx.String("tasks.modified", strings.Join(modified, ",")))
		}
	}

	return changed, attrs
}

func diffTasks(oldTasks, newTasks map[string]TaskEntry) (added, removed, modified []string) {
	for id, entry := range newTasks {
		prev, ok := oldTasks[id]
		switch {
		case !ok:
			added = append(added, id)
		case !reflect.DeepEqual(prev, entry):
			modified = append(modified, id)
		}
	}
	for id := range oldTasks {
		if _, ok := newTasks[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(modified)
	return added, removed, modified
}
