package app

import (
	"context"
	"errors"
	"fmt"

	"heartdash/internal/config"
	"heartdash/internal/logger"
	dashboardhttp "heartdash/internal/transport/http/dashboard"

	"golang.org/x/sync/errgroup"
)

// App owns the wired dashboard: load config, build dependencies, serve.
type App struct {
	cfg     *config.Config
	http    *dashboardhttp.Server
	closers []func() error
	Summary *StartupSummary
}

// NewApp builds the application without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run serves the dashboard until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.http == nil {
		return fmt.Errorf("http server not initialized")
	}
	if a.Summary != nil {
		logger.InfoBlock(a.Summary.String())
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("dashboard http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Close releases the resources opened by the builder.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
