// Package catalog holds the display decoration for the dashboard: model
// emojis, SHAP captions and the baseline accuracy banner. The file is
// reloaded whenever it changes on disk.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"heartdash/internal/logger"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors the catalog YAML file.
type FileConfig struct {
	Title             string            `yaml:"title"`
	BaseModelAccuracy float64           `yaml:"base_model_accuracy"`
	ModelEmoji        map[string]string `yaml:"model_emoji"`
	ShapCaptions      map[string]string `yaml:"shap_captions"`
}

// Snapshot is an immutable view of the catalog.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	FileConfig
}

// Decorate prefixes a model name with its emoji, if any.
func (s Snapshot) Decorate(model string) string {
	if e := strings.TrimSpace(s.ModelEmoji[model]); e != "" {
		return e + " " + model
	}
	return model
}

// Caption returns the configured caption for a SHAP plot kind, or fallback.
func (s Snapshot) Caption(kind, fallback string) string {
	if c := strings.TrimSpace(s.ShapCaptions[kind]); c != "" {
		return c
	}
	return fallback
}

// Defaults is the built-in decoration used when no catalog file is present.
func Defaults() FileConfig {
	return FileConfig{
		BaseModelAccuracy: 0.728,
		ModelEmoji: map[string]string{
			"XGBoost_Optuna_Tuned":                  "🚀",
			"MODELSTACKED+META_LEARNER":             "🧩",
			"MODELSTACKED+OPTUNA":                   "🔧",
			"MODELSTACKED_META_LEARNER+NEURAL_NETS": "🧠",
			"XGB_FEATURES":                          "📦",
			"LightGBM_XGB_FEATURES":                 "🌿",
			"PCA+XGB_FEATURES":                      "🔍",
			"LightGBM+PCA+XGB_FEATURES":             "⚡",
			"LightGBM+PCA+XGB_FEATURES+OPTUNA":      "🌱",
		},
		ShapCaptions: map[string]string{},
	}
}

// ChangeListener runs after a successful reload.
type ChangeListener func(Snapshot)

// Catalog serves the current snapshot and follows file edits.
type Catalog struct {
	path      string
	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// New loads path and watches it until Close. An empty path or a missing file
// yields the built-in defaults without watching.
func New(path string) (*Catalog, error) {
	c := &Catalog{path: strings.TrimSpace(path)}
	if c.path == "" {
		c.set(Defaults())
		return c, nil
	}
	if abs, err := filepath.Abs(c.path); err == nil {
		c.path = abs
	}
	if _, err := os.Stat(c.path); errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("catalog %s not found, using built-in decoration", c.path)
		c.set(Defaults())
		return c, nil
	}
	if err := c.reload(); err != nil {
		return nil, err
	}
	if err := c.watch(); err != nil {
		return nil, err
	}
	return c, nil
}

// watch follows the catalog's directory so a file replaced by rename is
// picked up as well as one written in place.
func (c *Catalog) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch catalog failed: %w", err)
	}
	if err := w.Add(filepath.Dir(c.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch catalog failed: %w", err)
	}
	c.watcher = w
	c.done = make(chan struct{})
	go c.watchLoop(w)
	return nil
}

func (c *Catalog) watchLoop(w *fsnotify.Watcher) {
	defer close(c.done)
	for {
		select {
		case evt, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != c.path || !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
				continue
			}
			if err := c.reload(); err != nil {
				logger.Errorf("catalog reload failed: %v", err)
				continue
			}
			c.notifyListeners()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warnf("catalog watcher: %v", err)
		}
	}
}

// Close stops watching the file. It is safe to call more than once.
func (c *Catalog) Close() error {
	if c == nil || c.watcher == nil {
		return nil
	}
	var err error
	c.closeOnce.Do(func() {
		err = c.watcher.Close()
		<-c.done
	})
	return err
}

// Snapshot returns the current catalog.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneSnapshot(c.snapshot)
}

// OnChange registers fn to run after each reload.
func (c *Catalog) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Catalog) reload() error {
	cfg, err := readCatalogFile(c.path)
	if err != nil {
		return err
	}
	c.set(cfg)
	logger.Infof("catalog loaded %d model decorations from %s", len(cfg.ModelEmoji), filepath.Base(c.path))
	return nil
}

func (c *Catalog) set(cfg FileConfig) {
	def := Defaults()
	if cfg.BaseModelAccuracy <= 0 {
		cfg.BaseModelAccuracy = def.BaseModelAccuracy
	}
	if cfg.ModelEmoji == nil {
		cfg.ModelEmoji = def.ModelEmoji
	}
	if cfg.ShapCaptions == nil {
		cfg.ShapCaptions = map[string]string{}
	}
	c.mu.Lock()
	c.snapshot = Snapshot{
		Version:    c.snapshot.Version + 1,
		LoadedAt:   time.Now(),
		FileConfig: cfg,
	}
	c.mu.Unlock()
}

func (c *Catalog) notifyListeners() {
	c.mu.RLock()
	snap := cloneSnapshot(c.snapshot)
	listeners := append([]ChangeListener(nil), c.listeners...)
	c.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("catalog listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := src
	dst.ModelEmoji = make(map[string]string, len(src.ModelEmoji))
	for k, v := range src.ModelEmoji {
		dst.ModelEmoji[k] = v
	}
	dst.ShapCaptions = make(map[string]string, len(src.ShapCaptions))
	for k, v := range src.ShapCaptions {
		dst.ShapCaptions[k] = v
	}
	return dst
}

func readCatalogFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read catalog failed: %w", err)
	}
	var cfg FileConfig
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse catalog failed: %w", err)
	}
	return cfg, nil
}
