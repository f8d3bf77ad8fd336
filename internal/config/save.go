package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// SaveTasks persists the given tasks section, leaving every other section of
// the document untouched. The file is replaced atomically (temp file +
// rename), and the committed in-memory config is updated so the watcher's
// content hash does not treat our own write as an external edit.
func (m *Manager) SaveTasks(tasks map[string]TaskEntry) error {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	doc, err := decodeDocument(m.path, raw)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	doc["tasks"] = tasksToDocument(tasks)

	out, err := encodeDocument(m.path, doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := writeFileAtomic(m.path, out); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	// Mirror the edit into the committed config.
	m.mu.Lock()
	if m.cfg != nil {
		cp := *m.cfg
		cp.Tasks = make(map[string]TaskEntry, len(tasks))
		for k, v := range tasks {
			e := v
			e.Commands = append([]string(nil), v.Commands...)
			cp.Tasks[k] = e
		}
		m.cfg = &cp
		m.lastHash = hashConfig(&cp)
	}
	m.mu.Unlock()
	return nil
}

func tasksToDocument(tasks map[string]TaskEntry) map[string]any {
	out := make(map[string]any, len(tasks))
	keys := make([]string, 0, len(tasks))
	for k := range tasks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e := tasks[k]
		entry := map[string]any{
			"time":     e.Time,
			"commands": append([]string(nil), e.Commands...),
		}
		if e.Message != "" {
			entry["message"] = e.Message
		}
		out[k] = entry
	}
	return out
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmpName)
		if werr != nil {
			return werr
		}
		return cerr
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
