package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads the YAML config at path, following include lists depth first,
// and returns it with defaults applied and validated. Relative paths in the
// result are resolved against the directory of path.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := includeWalker{visiting: map[string]bool{}, done: map[string]bool{}}
	if err := w.visit(abs); err != nil {
		return nil, err
	}
	v := viper.New()
	for _, f := range w.files {
		if err := v.MergeConfigMap(f.settings); err != nil {
			return nil, fmt.Errorf("merging config file failed (%s): %w", f.path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	collectSettingsKeys(v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	cfg.resolveRelativeTo(filepath.Dir(abs))
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with every default applied and no file backing it.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(make(keySet))
	return &cfg
}

type configFile struct {
	path     string
	settings map[string]any
}

// includeWalker collects config files so that every include precedes the
// file naming it. Later files override earlier ones when merged.
type includeWalker struct {
	visiting map[string]bool
	done     map[string]bool
	files    []configFile
}

func (w *includeWalker) visit(path string) error {
	path = filepath.Clean(path)
	if w.visiting[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if w.done[path] {
		return nil
	}
	w.visiting[path] = true
	defer delete(w.visiting, path)

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	includes, err := includeList(v.Get("include"))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := w.visit(inc); err != nil {
			return err
		}
	}
	w.done[path] = true
	w.files = append(w.files, configFile{path: path, settings: v.AllSettings()})
	return nil
}

// includeList accepts a single file name or a list of them.
func includeList(raw any) ([]string, error) {
	var items []string
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case string:
		items = []string{val}
	case []any:
		for _, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("include entries must be strings, got %T", item)
			}
			items = append(items, str)
		}
	default:
		return nil, fmt.Errorf("include must be a string or a list of strings")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

func collectSettingsKeys(settings map[string]any, dest keySet) {
	if dest == nil || len(settings) == 0 {
		return
	}
	flattenConfigKeys("", settings, dest)
}

func flattenConfigKeys(prefix string, node any, dest keySet) {
	switch val := node.(type) {
	case map[string]any:
		for k, v := range val {
			next := strings.ToLower(strings.TrimSpace(k))
			if next == "" {
				continue
			}
			if prefix != "" {
				next = prefix + "." + next
			}
			flattenConfigKeys(next, v, dest)
		}
	case []any:
		if prefix != "" {
			dest.mark(prefix)
		}
	default:
		if prefix != "" {
			dest.mark(prefix)
		}
	}
}
