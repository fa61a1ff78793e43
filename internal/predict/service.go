// Package predict scores a patient's FeatureVector with the loaded heart risk
// classifier.
package predict

import (
	"context"
	"errors"
	"fmt"
	"math"

	"heartdash/internal/artifact"
	"heartdash/internal/classifier"

	"github.com/shopspring/decimal"
)

var (
	ErrModelUnavailable = errors.New("model unavailable")
	ErrInvalidInput     = errors.New("invalid input")
	ErrClassifier       = errors.New("classifier failure")
)

// DefaultThreshold is the untuned decision boundary shipped with the model.
const DefaultThreshold = 0.5

// Classifier produces the positive class probability for an ordered row.
type Classifier interface {
	PredictProba(row []float64) (float64, error)
}

// ArtifactSource is the slice of the artifact store needed to load a model.
type ArtifactSource interface {
	Load(id artifact.ID) ([]byte, error)
}

// Result is a single scoring outcome. It is never stored.
type Result struct {
	Probability float64 `json:"probability"`
	HighRisk    bool    `json:"high_risk"`
	Threshold   float64 `json:"threshold"`
}

// Percent is the probability in percent rounded to two decimals.
func (r Result) Percent() string {
	return decimal.NewFromFloat(r.Probability).Shift(2).Round(2).StringFixed(2)
}

// Label is the human readable risk class.
func (r Result) Label() string {
	if r.HighRisk {
		return "High Risk"
	}
	return "Low Risk"
}

// Option configures a Service.
type Option func(*Service)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(t float64) Option {
	return func(s *Service) { s.threshold = t }
}

// Service wraps the process wide classifier. It holds no mutable state after
// construction and is safe for concurrent use.
type Service struct {
	clf       Classifier
	threshold float64
}

func NewService(clf Classifier, opts ...Option) (*Service, error) {
	if clf == nil {
		return nil, fmt.Errorf("%w: no classifier loaded", ErrModelUnavailable)
	}
	s := &Service{clf: clf, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(s)
	}
	if s.threshold <= 0 || s.threshold >= 1 || math.IsNaN(s.threshold) {
		return nil, fmt.Errorf("decision threshold must be in (0,1), got %v", s.threshold)
	}
	return s, nil
}

// Threshold returns the configured decision boundary.
func (s *Service) Threshold() float64 {
	return s.threshold
}

// Score validates v, asks the classifier for the positive class probability
// and applies the threshold. Classifier errors are returned as is, wrapped
// with ErrClassifier; nothing is retried.
func (s *Service) Score(ctx context.Context, v FeatureVector) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	row, err := v.Row()
	if err != nil {
		return Result{}, err
	}
	p, err := s.clf.PredictProba(row)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrClassifier, err)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return Result{}, fmt.Errorf("%w: probability %v outside [0,1]", ErrClassifier, p)
	}
	return Result{Probability: p, HighRisk: p > s.threshold, Threshold: s.threshold}, nil
}

// LoadEnsemble reads the model artifact and checks it was trained on
// FeatureNames in order. Every failure is reported as ErrModelUnavailable.
func LoadEnsemble(src ArtifactSource) (*classifier.Ensemble, error) {
	data, err := src.Load(artifact.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	ens, err := classifier.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	if err := ens.ExpectFeatures(FeatureNames); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return ens, nil
}
