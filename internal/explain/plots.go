// Package explain maps the precomputed SHAP summary plots onto artifacts.
package explain

import (
	"fmt"
	"strings"

	"heartdash/internal/artifact"
)

// PlotKind selects one of the SHAP summary renderings.
type PlotKind string

const (
	Bar PlotKind = "bar"
	Dot PlotKind = "dot"
)

// Kinds lists the plots in display order.
var Kinds = []PlotKind{Bar, Dot}

// ParsePlotKind accepts "bar" or "dot" in any case; empty means Bar.
func ParsePlotKind(raw string) (PlotKind, error) {
	switch PlotKind(strings.ToLower(strings.TrimSpace(raw))) {
	case "", Bar:
		return Bar, nil
	case Dot:
		return Dot, nil
	}
	return "", fmt.Errorf("unknown SHAP plot type %q (want bar or dot)", raw)
}

// ArtifactID returns the artifact holding the rendered plot.
func (k PlotKind) ArtifactID() artifact.ID {
	if k == Dot {
		return artifact.ShapDot
	}
	return artifact.ShapBar
}

// Title is the toggle label.
func (k PlotKind) Title() string {
	if k == Dot {
		return "🌈 Summary Dot Plot"
	}
	return "📊 Summary Bar Plot"
}

// DefaultCaption is shown under the image when the catalog has none.
func (k PlotKind) DefaultCaption() string {
	if k == Dot {
		return "SHAP Summary - Feature Impact (Dot)"
	}
	return "Top Features - Mean SHAP Value (Bar)"
}

// ImageLoader is the slice of the artifact store needed for plots.
type ImageLoader interface {
	LoadImage(id artifact.ID) (artifact.Image, error)
}

// Load fetches the plot image. A missing file is artifact.ErrNotFound.
func Load(store ImageLoader, kind PlotKind) (artifact.Image, error) {
	img, err := store.LoadImage(kind.ArtifactID())
	if err != nil {
		return artifact.Image{}, fmt.Errorf("shap %s plot: %w", kind, err)
	}
	return img, nil
}

// Locator resolves an artifact to its file without reading it.
type Locator interface {
	Path(id artifact.ID) (string, error)
}

// Locate checks the plot exists and returns its file.
func Locate(store Locator, kind PlotKind) (string, error) {
	path, err := store.Path(kind.ArtifactID())
	if err != nil {
		return "", fmt.Errorf("shap %s plot: %w", kind, err)
	}
	return path, nil
}
