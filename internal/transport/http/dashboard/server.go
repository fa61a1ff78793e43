package dashboardhttp

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"heartdash/internal/artifact"
	"heartdash/internal/catalog"
	"heartdash/internal/experiments"
	"heartdash/internal/logger"
	"heartdash/internal/metrics"
	"heartdash/internal/predict"
	webassets "heartdash/internal/transport/web"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	shutdownGrace   = 5 * time.Second
	// localWebDir is the asset tree as laid out in this repository, relative
	// to the repo root.
	localWebDir     = "internal/transport/web"
)

// Predictor scores one feature vector.
type Predictor interface {
	Score(ctx context.Context, v predict.FeatureVector) (predict.Result, error)
	Threshold() float64
}

// Comparisons yields the model comparison table.
type Comparisons interface {
	Table(ctx context.Context) (experiments.Table, error)
	SourceName() string
}

// Images serves the precomputed SHAP plots.
type Images interface {
	LoadImage(id artifact.ID) (artifact.Image, error)
	Path(id artifact.ID) (string, error)
}

// Catalog supplies display decoration.
type Catalog interface {
	Snapshot() catalog.Snapshot
}

// Server serves the dashboard pages and the /api/v1 JSON endpoints.
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig describes the dashboard dependencies.
type ServerConfig struct {
	Addr        string
	Title       string
	Predictor   Predictor
	Comparisons Comparisons
	Images      Images
	Catalog     Catalog
	Metrics     *metrics.Metrics
}

// NewServer builds the dashboard HTTP server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Predictor == nil {
		return nil, errors.New("dashboard server requires a predictor")
	}
	if cfg.Comparisons == nil || cfg.Images == nil {
		return nil, errors.New("dashboard server requires comparisons and images")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8501"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger())
	router.SetFuncMap(dashboardTemplateFuncs)

	if err := loadTemplates(router); err != nil {
		return nil, err
	}
	if err := serveStatic(router); err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	h := &handler{
		title:       cfg.Title,
		predictor:   cfg.Predictor,
		comparisons: cfg.Comparisons,
		images:      cfg.Images,
		catalog:     cfg.Catalog,
		metrics:     cfg.Metrics,
	}
	h.registerPages(router)
	h.registerAPI(router.Group("/api/v1"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

func loadTemplates(router *gin.Engine) error {
	// A checkout-local tree wins so templates can be edited without a rebuild.
	if files, _ := filepath.Glob(filepath.Join(localWebDir, "templates", "*.html")); len(files) > 0 {
		router.LoadHTMLFiles(files...)
		return nil
	}
	tmpl, err := template.New("dashboard").Funcs(dashboardTemplateFuncs).ParseFS(webassets.Templates, "templates/*.html")
	if err != nil {
		return fmt.Errorf("parse embedded templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)
	return nil
}

func serveStatic(router *gin.Engine) error {
	if stat, err := os.Stat(filepath.Join(localWebDir, "static")); err == nil && stat.IsDir() {
		router.Static("/static", filepath.Join(localWebDir, "static"))
		return nil
	}
	sub, err := fs.Sub(webassets.Static, "static")
	if err != nil {
		return err
	}
	router.StaticFS("/static", http.FS(sub))
	return nil
}

// requestID tags every request with an id, reusing the caller's if present.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// requestLogger logs one line per request; failures log at warn.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		logf := logger.Debugf
		if status >= http.StatusInternalServerError {
			logf = logger.Warnf
		}
		logf("%s %s -> %d in %s (request %s)",
			c.Request.Method, c.Request.URL.RequestURI(), status,
			time.Since(start).Round(time.Microsecond), c.GetString("request_id"))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	if s == nil {
		return nil
	}
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails. In-flight
// requests get shutdownGrace to finish once ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServe() }()
	logger.Infof("🌐 dashboard listening on %s", s.addr)

	select {
	case err := <-served:
		return fmt.Errorf("dashboard listener: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dashboard shutdown: %w", err)
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
