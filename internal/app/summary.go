package app

import (
	"fmt"
	"strings"

	"heartdash/internal/artifact"
	"heartdash/internal/classifier"
	"heartdash/internal/config"
)

type StartupSummary struct {
	Env         string
	HTTPAddr    string
	Model       ModelSummary
	Artifacts   []ArtifactStatus
	Experiments string
	Catalog     string
}

type ModelSummary struct {
	Trees     int
	Features  []string
	Threshold float64
}

type ArtifactStatus struct {
	ID      artifact.ID
	Path    string
	Present bool
}

func buildStartupSummary(cfg *config.Config, store *artifact.Store, ens *classifier.Ensemble, source string, threshold float64) *StartupSummary {
	s := &StartupSummary{
		Env:         cfg.App.Env,
		HTTPAddr:    cfg.App.HTTPAddr,
		Experiments: source,
		Catalog:     cfg.Artifacts.Catalog,
		Model: ModelSummary{
			Trees:     ens.NumTrees(),
			Features:  ens.FeatureNames(),
			Threshold: threshold,
		},
	}
	for _, id := range store.IDs() {
		status := ArtifactStatus{ID: id}
		if path, err := store.Path(id); err == nil {
			status.Path = path
			status.Present = true
		}
		s.Artifacts = append(s.Artifacts, status)
	}
	return s
}

func (s *StartupSummary) String() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString("STARTUP SUMMARY\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "[app] env=%s listen=%s\n", s.Env, s.HTTPAddr)
	fmt.Fprintf(&b, "[model] trees=%d threshold=%.2f\n", s.Model.Trees, s.Model.Threshold)
	fmt.Fprintf(&b, "  features: %s\n", formatList(s.Model.Features))
	b.WriteString("[artifacts]\n")
	if len(s.Artifacts) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, a := range s.Artifacts {
		state := "missing"
		if a.Present {
			state = a.Path
		}
		fmt.Fprintf(&b, "  - %s: %s\n", a.ID, state)
	}
	fmt.Fprintf(&b, "[experiments] %s\n", s.Experiments)
	catalog := s.Catalog
	if catalog == "" {
		catalog = "(built-in defaults)"
	}
	fmt.Fprintf(&b, "[catalog] %s\n", catalog)
	b.WriteString(strings.Repeat("=", 60))
	return b.String()
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
