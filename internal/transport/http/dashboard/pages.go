package dashboardhttp

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"heartdash/internal/artifact"
	"heartdash/internal/catalog"
	"heartdash/internal/charts"
	"heartdash/internal/experiments"
	"heartdash/internal/explain"
	"heartdash/internal/logger"
	"heartdash/internal/metrics"
	"heartdash/internal/predict"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type handler struct {
	title       string
	predictor   Predictor
	comparisons Comparisons
	images      Images
	catalog     Catalog
	metrics     *metrics.Metrics
}

func (h *handler) registerPages(router *gin.Engine) {
	router.GET("/", h.renderHome)
	router.GET("/predict", h.renderPredictForm)
	router.POST("/predict", h.renderPrediction)
	router.GET("/compare", h.renderCompare)
	router.GET("/compare/chart", h.renderCompareChart)
	router.GET("/shap", h.renderShap)
	router.GET("/shap/image/:kind", h.serveShapImage)
	router.GET("/stats", h.renderStats)
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found", "kind": kindNotFound})
			return
		}
		h.renderError(c, http.StatusNotFound, "🤔 Page not found", "")
	})
}

func (h *handler) snapshot() catalog.Snapshot {
	if h.catalog == nil {
		return catalog.Snapshot{FileConfig: catalog.Defaults()}
	}
	return h.catalog.Snapshot()
}

func (h *handler) chrome(page string) chrome {
	title := strings.TrimSpace(h.title)
	if t := strings.TrimSpace(h.snapshot().Title); t != "" {
		title = t
	}
	c := chrome{Title: title, Page: page, Nav: navItems, Particles: true}
	if page == "home" {
		c.BodyClass = "home"
	}
	return c
}

func (h *handler) renderHome(c *gin.Context) {
	defer h.metrics.TimePage("home", time.Now())
	c.HTML(http.StatusOK, "home.html", h.chrome("home"))
}

func (h *handler) renderPredictForm(c *gin.Context) {
	defer h.metrics.TimePage("predict", time.Now())
	c.HTML(http.StatusOK, "predict.html", predictView{
		chrome: h.chrome("predict"),
		Form:   defaultPredictForm(),
		Levels: levelOptions,
	})
}

func (h *handler) renderPrediction(c *gin.Context) {
	defer h.metrics.TimePage("predict", time.Now())
	if err := c.Request.ParseForm(); err != nil {
		logger.Warnf("predict form parse failed: %v", err)
	}
	view := predictView{
		chrome: h.chrome("predict"),
		Form:   formFromValues(c.Request.PostForm),
		Levels: levelOptions,
	}
	result, err := h.score(c, func() (predict.FeatureVector, error) {
		return predict.ParseForm(c.Request.PostForm)
	})
	if err != nil {
		status, _ := classify(err)
		view.Error = "Error during prediction: " + err.Error()
		c.HTML(status, "predict.html", view)
		return
	}
	view.Result = &result
	c.HTML(http.StatusOK, "predict.html", view)
}

// score parses and scores one vector, recording the outcome.
func (h *handler) score(c *gin.Context, parse func() (predict.FeatureVector, error)) (predict.Result, error) {
	fv, err := parse()
	if err == nil {
		var res predict.Result
		res, err = h.predictor.Score(c.Request.Context(), fv)
		if err == nil {
			h.metrics.ObservePrediction(res.HighRisk)
			return res, nil
		}
	}
	_, kind := classify(err)
	h.metrics.ObservePredictionError(kind)
	if kind == kindInvalidInput || kind == kindCanceled {
		logger.Debugf("predict rejected: %v", err)
	} else {
		logger.Errorf("predict failed: %v", err)
	}
	return predict.Result{}, err
}

func (h *handler) renderCompare(c *gin.Context) {
	defer h.metrics.TimePage("compare", time.Now())
	snap := h.snapshot()
	view := compareView{
		chrome:       h.chrome("compare"),
		BaseAccuracy: decimal.NewFromFloat(snap.BaseModelAccuracy).Shift(2).String() + "%",
		Source:       h.comparisons.SourceName(),
	}
	table, err := h.comparisons.Table(c.Request.Context())
	if err != nil {
		var status int
		status, view.Error = h.pageFailure("compare", "Comparison data unavailable", err)
		c.HTML(status, "compare.html", view)
		return
	}
	for _, r := range table.SortedByAccuracy() {
		view.Rows = append(view.Rows, compareRow{
			Rank:     r.Rank,
			Name:     snap.Decorate(r.ModelName),
			Accuracy: experiments.FormatPercent(r.Accuracy),
			F1:       experiments.FormatPercent(r.F1Score),
		})
	}
	c.HTML(http.StatusOK, "compare.html", view)
}

func (h *handler) renderCompareChart(c *gin.Context) {
	defer h.metrics.TimePage("compare_chart", time.Now())
	table, err := h.comparisons.Table(c.Request.Context())
	if err != nil {
		status, _ := classify(err)
		h.missArtifact("compare_chart", err)
		c.String(status, err.Error())
		return
	}
	snap := h.snapshot()
	var buf bytes.Buffer
	if err := charts.RenderAccuracyBar(&buf, table.SortedByAccuracy(), snap.Decorate); err != nil {
		status, _ := classify(err)
		c.String(status, err.Error())
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (h *handler) renderShap(c *gin.Context) {
	defer h.metrics.TimePage("shap", time.Now())
	view := shapView{chrome: h.chrome("shap")}
	kind, err := explain.ParsePlotKind(c.Query("plot"))
	if err != nil {
		view.Toggles = shapToggles(explain.Bar)
		view.Error = err.Error()
		c.HTML(http.StatusBadRequest, "shap.html", view)
		return
	}
	view.Toggles = shapToggles(kind)
	// A missing plot is reported in-page rather than as a broken image.
	if _, err := explain.Locate(h.images, kind); err != nil {
		var status int
		status, view.Error = h.pageFailure("shap", "SHAP plot unavailable", err)
		c.HTML(status, "shap.html", view)
		return
	}
	view.ImageURL = "/shap/image/" + string(kind)
	view.Caption = h.snapshot().Caption(string(kind), kind.DefaultCaption())
	c.HTML(http.StatusOK, "shap.html", view)
}

func shapToggles(selected explain.PlotKind) []shapToggle {
	out := make([]shapToggle, 0, len(explain.Kinds))
	for _, k := range explain.Kinds {
		out = append(out, shapToggle{Kind: k, Title: k.Title(), Selected: k == selected})
	}
	return out
}

func (h *handler) serveShapImage(c *gin.Context) {
	kind, err := explain.ParsePlotKind(c.Param("kind"))
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	img, err := explain.Load(h.images, kind)
	if err != nil {
		status, _ := classify(err)
		h.missArtifact("shap_image", err)
		c.String(status, err.Error())
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, img.ContentType, img.Bytes)
}

func (h *handler) renderStats(c *gin.Context) {
	defer h.metrics.TimePage("stats", time.Now())
	view := statsView{
		chrome: h.chrome("stats"),
		Source: h.comparisons.SourceName(),
	}
	table, err := h.comparisons.Table(c.Request.Context())
	if err == nil {
		var summary experiments.Summary
		summary, err = table.Summary()
		if err == nil {
			for _, r := range table.Records() {
				view.Rows = append(view.Rows, statsRow{
					Rank:     r.Rank,
					RunID:    r.RunID,
					Accuracy: experiments.FormatRatio(r.Accuracy),
					F1:       experiments.FormatRatio(r.F1Score),
					Name:     r.ModelName,
				})
			}
			view.Best = &statsRow{
				RunID:    summary.Best.RunID,
				Accuracy: experiments.FormatRatio(summary.Best.Accuracy),
				F1:       experiments.FormatRatio(summary.Best.F1Score),
				Name:     summary.Best.ModelName,
			}
			view.Runs = summary.Runs
			view.MeanAccuracy = summary.MeanAccuracy
			view.MeanF1 = summary.MeanF1
		}
	}
	if err != nil {
		var status int
		status, view.Error = h.pageFailure("stats", "Experiment stats unavailable", err)
		c.HTML(status, "stats.html", view)
		return
	}
	c.HTML(http.StatusOK, "stats.html", view)
}

// pageFailure logs err and returns the status and in-page message for it.
func (h *handler) pageFailure(page, msg string, err error) (int, string) {
	status, _ := classify(err)
	h.missArtifact(page, err)
	logger.Warnf("%s page: %v", page, err)
	return status, msg + ": " + err.Error()
}

func (h *handler) missArtifact(page string, err error) {
	if errors.Is(err, artifact.ErrNotFound) {
		h.metrics.ObserveArtifactMiss(page)
	}
}

func (h *handler) renderError(c *gin.Context, status int, heading, msg string) {
	view := errorView{chrome: h.chrome(""), Heading: heading}
	view.Error = msg
	c.HTML(status, "error.html", view)
}
