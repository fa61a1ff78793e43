package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Artifacts.validate(); err != nil {
		return err
	}
	return c.Predict.validate()
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level %q is not one of debug|info|warn|error", a.LogLevel)
	}
	switch strings.ToLower(strings.TrimSpace(a.LogFormat)) {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format %q is not one of text|json", a.LogFormat)
	}
	if strings.TrimSpace(a.HTTPAddr) == "" {
		return fmt.Errorf("app.http_addr cannot be empty")
	}
	return nil
}

func (a *ArtifactsConfig) validate() error {
	if strings.TrimSpace(a.Root) == "" {
		return fmt.Errorf("artifacts.root cannot be empty")
	}
	if strings.TrimSpace(a.Model) == "" {
		return fmt.Errorf("artifacts.model cannot be empty")
	}
	return nil
}

func (p *PredictConfig) validate() error {
	if p.Threshold <= 0 || p.Threshold >= 1 {
		return fmt.Errorf("predict.threshold must be in (0,1), got %v", p.Threshold)
	}
	return nil
}
