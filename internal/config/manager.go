package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "taskpilot/pkg/logx"
)

// reloadDelay lets editors finish writing before the file is read.
const reloadDelay = 250 * time.Millisecond

// Change is one committed config update as the daemon sees it.
type Change struct {
	Old, New *Config
	Sections []string     // top-level sections that differ
	Restart  []string     // keys that only take effect after a restart
	Attrs    []logx.Field // log fields describing the change
}

// Manager owns the config file: it loads it, watches it and hands validated
// updates to the daemon one Change at a time.
type Manager struct {
	path string
	log  logx.Logger

	mu   sync.RWMutex
	cfg  *Config
	hash uint64

	reloadMu sync.Mutex
	changes  chan Change
}

func NewManager(path string) *Manager {
	return &Manager{path: path, log: logx.Nop(), changes: make(chan Change, 1)}
}

func (m *Manager) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		m.log = log
	}
}

// Parse reads and validates the file without committing it. YAML and JSON
// share one strict decoder: unknown keys and trailing data are errors.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, err := toJSON(m.path, b)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", m.path, err)
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", m.path, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding %s: trailing data", m.path)
	}
	if _, err := cfg.Resolve(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", m.path, err)
	}
	return &cfg, nil
}

// Load parses and commits the file. It does not publish a Change.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cfg, m.hash = cfg, hashConfig(cfg)
	m.mu.Unlock()
	return cfg, nil
}

// Get returns the committed config.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Changes delivers committed updates. Updates the receiver has not picked up
// yet are merged, so a Change always spans from the config the receiver last
// saw to the newest one.
func (m *Manager) Changes() <-chan Change { return m.changes }

// Reload re-reads the file and publishes a Change when it parses, validates
// and differs from the committed config. A failed reload keeps the old one.
func (m *Manager) Reload() error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config rejected; keeping previous", logx.String("path", m.path), logx.Err(err))
		return err
	}
	h := hashConfig(cfg)

	m.mu.Lock()
	old := m.cfg
	if h == m.hash {
		m.mu.Unlock()
		m.log.Debug("config unchanged", logx.String("path", m.path))
		return nil
	}
	m.cfg, m.hash = cfg, h
	m.mu.Unlock()

	// Fold a Change still waiting in the channel into this one.
	select {
	case pending := <-m.changes:
		old = pending.Old
	default:
	}
	sections, attrs, restart := SummarizeConfigChange(old, cfg)
	if len(sections) == 0 {
		// Net effect of the merged updates is nothing.
		return nil
	}
	m.changes <- Change{Old: old, New: cfg, Sections: sections, Restart: restart, Attrs: attrs}
	return nil
}

// Watch reloads the file after it changes on disk until ctx is done. The
// directory is watched so editors that replace the file are seen. Watch
// returns an error when the watcher fails; callers restart it.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer w.Close()
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watch %s: %w", dir, err)
	}
	m.log.Debug("config watch started", logx.String("path", m.path))

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("config watch: events closed")
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(reloadDelay)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("config watch: errors closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; reloading", logx.Err(err))
				timer.Reset(reloadDelay)
				continue
			}
			return fmt.Errorf("config watch: %w", err)
		case <-timer.C:
			_ = m.Reload()
		}
	}
}

func hashConfig(cfg *Config) uint64 {
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
