package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"quorum/internal/logger"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ProviderDefinition is one configured opinion provider.
type ProviderDefinition struct {
	ID     string             `yaml:"id"`
	Kind   string             `yaml:"kind"`
	Weight float64            `yaml:"weight"`
	Params map[string]float64 `yaml:"params"`
}

type fileConfig struct {
	Providers []ProviderDefinition `yaml:"providers"`
}

// Snapshot is the read-only view handed to subscribers.
type Snapshot struct {
	Version   int64
	LoadedAt  time.Time
	Providers []ProviderDefinition
}

// Weights maps provider id to its configured weight.
func (s Snapshot) Weights() map[string]float64 {
	out := make(map[string]float64, len(s.Providers))
	for _, p := range s.Providers {
		out[p.ID] = p.Weight
	}
	return out
}

// ChangeListener is called after every successful reload.
type ChangeListener func(Snapshot)

// ProfileLoader reads the provider profile from YAML and watches the file for
// hot reloads. A reload that fails to parse or validate keeps the previous
// snapshot active.
type ProfileLoader struct {
	path    string
	watcher *fsnotify.Watcher

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
	closed    bool
}

func NewProfileLoader(path string) (*ProfileLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile loader requires path")
	}
	l := &ProfileLoader{path: path}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Watch starts the fsnotify loop. Editors replace files instead of writing in
// place, so the watcher follows the directory and filters on the base name.
func (l *ProfileLoader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("profile watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("profile watcher add: %w", err)
	}
	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	base := filepath.Base(l.path)
	go func() {
		for {
			select {
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(evt.Name) != base {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := l.reload(); err != nil {
					logger.Errorf("provider profile reload failed (%s): %v", evt.Name, err)
					continue
				}
				logger.Infof("provider profile reloaded from %s", l.path)
				l.notify()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("provider profile watcher error: %v", err)
			}
		}
	}()
	return nil
}

// Snapshot returns the current profile (deep copy).
func (l *ProfileLoader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSnapshot(l.snapshot)
}

// Subscribe registers a listener and immediately delivers the current snapshot.
func (l *ProfileLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := cloneSnapshot(l.snapshot)
	l.mu.Unlock()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("provider profile listener panic: %v", r)
			}
		}()
		fn(snap)
	}()
}

func (l *ProfileLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

func (l *ProfileLoader) reload() error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read provider profile: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse provider profile: %w", err)
	}
	defs, err := normalizeDefinitions(fc.Providers)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.snapshot = Snapshot{
		Version:   l.snapshot.Version + 1,
		LoadedAt:  time.Now(),
		Providers: defs,
	}
	l.mu.Unlock()
	return nil
}

func (l *ProfileLoader) notify() {
	l.mu.RLock()
	listeners := append([]ChangeListener(nil), l.listeners...)
	snap := cloneSnapshot(l.snapshot)
	l.mu.RUnlock()
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("provider profile listener panic: %v", r)
				}
			}()
			fn(snap)
		}()
	}
}

func normalizeDefinitions(defs []ProviderDefinition) ([]ProviderDefinition, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("provider profile defines no providers")
	}
	out := make([]ProviderDefinition, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		def.ID = strings.TrimSpace(def.ID)
		def.Kind = strings.ToLower(strings.TrimSpace(def.Kind))
		if def.ID == "" {
			return nil, fmt.Errorf("provider #%d missing id", i)
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("duplicate provider id %q", def.ID)
		}
		seen[def.ID] = true
		if def.Kind == "" {
			return nil, fmt.Errorf("provider %s missing kind", def.ID)
		}
		if def.Weight <= 0 || def.Weight > 1 {
			return nil, fmt.Errorf("provider %s weight must be in (0, 1], got %.4f", def.ID, def.Weight)
		}
		out = append(out, def)
	}
	return out, nil
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := Snapshot{Version: s.Version, LoadedAt: s.LoadedAt}
	out.Providers = make([]ProviderDefinition, len(s.Providers))
	copy(out.Providers, s.Providers)
	for i := range out.Providers {
		if len(s.Providers[i].Params) > 0 {
			params := make(map[string]float64, len(s.Providers[i].Params))
			for k, v := range s.Providers[i].Params {
				params[k] = v
			}
			out.Providers[i].Params = params
		}
	}
	return out
}
