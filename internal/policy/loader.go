package policy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader loads policy YAML files from a directory and hot-reloads them on
// change. It uses atomic pointer swaps so Active is safe under unbounded
// request-level parallelism.
type Loader struct {
	dir     string
	active  atomic.Pointer[Policy]
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewLoader reads all policies in dir and selects the active one. A missing
// or empty directory yields the default policy.
func NewLoader(dir string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		dir:    dir,
		logger: logger,
	}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Active implements Provider.
func (l *Loader) Active() *Policy {
	return l.active.Load()
}

// Watch starts watching the policy directory for changes. Rapid changes are
// debounced before reloading.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	l.watcher = watcher

	if err := watcher.Add(l.dir); err != nil {
		_ = watcher.Close()
		return err
	}

	go l.watchLoop(ctx)
	return nil
}

func (l *Loader) watchLoop(ctx context.Context) {
	const debounceDelay = 500 * time.Millisecond
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			_ = l.watcher.Close()
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					if err := l.reload(); err != nil {
						l.logger.Error("failed to reload policies, keeping current", "error", err)
					} else {
						l.logger.Info("policies reloaded", "active", l.Active().Name)
					}
				})
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("policy watcher error", "error", err)
		}
	}
}

func (l *Loader) reload() error {
	policies, err := loadDir(l.dir)
	if err != nil {
		return err
	}

	active := selectActive(policies)
	if active == nil {
		active = Default()
	}
	l.active.Store(active)
	return nil
}

// Close stops the policy watcher.
func (l *Loader) Close() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// loadDir parses every *.yaml file in dir. Files that fail to parse or
// validate are skipped with an error only when nothing loads at all.
func loadDir(dir string) ([]*Policy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read policy dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var policies []*Policy
	var firstErr error
	for _, name := range names {
		p, err := loadFile(filepath.Join(dir, name))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		policies = append(policies, p)
	}
	if len(policies) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return policies, nil
}

func loadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", filepath.Base(path), err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validate policy %s: %w", filepath.Base(path), err)
	}
	return p, nil
}

// selectActive returns the first enabled policy, preferring one named
// "default" when several are enabled.
func selectActive(policies []*Policy) *Policy {
	var first *Policy
	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		if p.Name == "default" {
			return p
		}
		if first == nil {
			first = p
		}
	}
	return first
}
