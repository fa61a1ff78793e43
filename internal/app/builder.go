package app

import (
	"context"
	"fmt"

	"heartdash/internal/artifact"
	"heartdash/internal/catalog"
	"heartdash/internal/classifier"
	"heartdash/internal/config"
	"heartdash/internal/experiments"
	"heartdash/internal/logger"
	"heartdash/internal/metrics"
	"heartdash/internal/predict"
	dashboardhttp "heartdash/internal/transport/http/dashboard"
)

type AppBuilder struct {
	cfg *config.Config

	classifierFn  func(predict.ArtifactSource) (*classifier.Ensemble, error)
	experimentsFn func(*artifact.Store, config.ArtifactsConfig) (experiments.Source, func() error, error)
	catalogFn     func(string) (*catalog.Catalog, error)
	httpFn        func(dashboardhttp.ServerConfig) (*dashboardhttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:           cfg,
		classifierFn:  predict.LoadEnsemble,
		experimentsFn: buildExperimentSource,
		catalogFn:     catalog.New,
		httpFn:        dashboardhttp.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Build wires store, classifier, prediction service, experiments, catalog
// and HTTP server in that order. A missing or invalid model is fatal.
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	store, err := artifact.Open(cfg.Artifacts.Root, artifactFiles(cfg.Artifacts))
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ artifact root %s", store.Root())

	ens, err := b.classifierFn(store)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ model loaded: %d trees over %v", ens.NumTrees(), ens.FeatureNames())

	predictor, err := predict.NewService(ens, predict.WithThreshold(cfg.Predict.Threshold))
	if err != nil {
		return nil, err
	}

	var closers []func() error
	src, closeSrc, err := b.experimentsFn(store, cfg.Artifacts)
	if err != nil {
		return nil, err
	}
	if closeSrc != nil {
		closers = append(closers, closeSrc)
	}
	logger.Infof("✓ experiments source: %s", src.Name())

	cat, err := b.catalogFn(cfg.Artifacts.Catalog)
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	closers = append(closers, cat.Close)
	cat.OnChange(func(s catalog.Snapshot) {
		logger.Infof("catalog reloaded (version %d, %d model labels)", s.Version, len(s.ModelEmoji))
	})

	m := metrics.New()
	server, err := b.httpFn(dashboardhttp.ServerConfig{
		Addr:        cfg.App.HTTPAddr,
		Title:       cfg.App.Title,
		Predictor:   predictor,
		Comparisons: experiments.NewLoader(src),
		Images:      store,
		Catalog:     cat,
		Metrics:     m,
	})
	if err != nil {
		closeAll(closers)
		return nil, err
	}

	return &App{
		cfg:     cfg,
		http:    server,
		closers: closers,
		Summary: buildStartupSummary(cfg, store, ens, src.Name(), predictor.Threshold()),
	}, nil
}

func artifactFiles(cfg config.ArtifactsConfig) map[artifact.ID]string {
	return map[artifact.ID]string{
		artifact.Model:       cfg.Model,
		artifact.Comparisons: cfg.Comparisons,
		artifact.ShapBar:     cfg.ShapBar,
		artifact.ShapDot:     cfg.ShapDot,
		artifact.Tracking:    cfg.TrackingDB,
	}
}

// buildExperimentSource prefers the MLflow tracking store when one is
// configured and falls back to the comparisons artifact.
func buildExperimentSource(store *artifact.Store, cfg config.ArtifactsConfig) (experiments.Source, func() error, error) {
	if cfg.TrackingDB == "" {
		return experiments.NewJSONSource(store), nil, nil
	}
	path, err := store.Path(artifact.Tracking)
	if err != nil {
		return nil, nil, fmt.Errorf("tracking store: %w", err)
	}
	ts, err := experiments.OpenTrackingStore(path, cfg.TrackingExperiment)
	if err != nil {
		return nil, nil, err
	}
	return ts, ts.Close, nil
}

func closeAll(closers []func() error) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Warnf("close failed: %v", err)
		}
	}
}
