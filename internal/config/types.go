package config

import (
	"path/filepath"
	"strings"
)

// Config is the full dashboard configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Predict   PredictConfig   `yaml:"predict"`
}

// AppConfig holds process level settings.
type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`
	HTTPAddr string `yaml:"http_addr"`
	Title    string `yaml:"title"`
	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format"`
}

// ArtifactsConfig points at the offline pipeline output. File entries are
// relative to Root unless absolute.
type ArtifactsConfig struct {
	Root        string `yaml:"root"`
	Model       string `yaml:"model"`
	Comparisons string `yaml:"comparisons"`
	ShapBar     string `yaml:"shap_bar"`
	ShapDot     string `yaml:"shap_dot"`
	// TrackingDB is an optional MLflow sqlite backend store. When set the
	// experiment tables are read from it instead of Comparisons.
	TrackingDB         string `yaml:"tracking_db"`
	TrackingExperiment string `yaml:"tracking_experiment"`
	Catalog            string `yaml:"catalog"`
}

// resolveRelativeTo anchors file paths at the config directory so the process
// working directory does not matter.
func (c *Config) resolveRelativeTo(dir string) {
	if dir == "" {
		return
	}
	if c.App.LogPath != "" && !filepath.IsAbs(c.App.LogPath) {
		c.App.LogPath = filepath.Join(dir, c.App.LogPath)
	}
	c.Artifacts.resolveRelativeTo(dir)
}

func (a *ArtifactsConfig) resolveRelativeTo(dir string) {
	if a == nil || dir == "" {
		return
	}
	if a.Root != "" && !filepath.IsAbs(a.Root) {
		a.Root = filepath.Join(dir, a.Root)
	}
	if a.Catalog != "" && !filepath.IsAbs(a.Catalog) {
		a.Catalog = filepath.Join(dir, a.Catalog)
	}
}

// PredictConfig carries the scoring policy.
type PredictConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// keySet tracks the key paths explicitly present in the config files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes how one field receives its default.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
