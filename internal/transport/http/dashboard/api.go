package dashboardhttp

import (
	"fmt"
	"net/http"
	"strconv"

	"heartdash/internal/experiments"
	"heartdash/internal/predict"

	"github.com/gin-gonic/gin"
)

type predictResponse struct {
	Probability float64 `json:"probability"`
	Percent     string  `json:"percent"`
	HighRisk    bool    `json:"high_risk"`
	Label       string  `json:"label"`
	Threshold   float64 `json:"threshold"`
}

type comparisonRow struct {
	experiments.Ranked
	DisplayName string `json:"display_name"`
}

func (h *handler) registerAPI(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/predict", h.handlePredict)
	group.GET("/comparisons", h.handleComparisons)
	group.GET("/comparisons/best", h.handleBestComparison)
}

func (h *handler) handlePredict(c *gin.Context) {
	res, err := h.score(c, func() (predict.FeatureVector, error) {
		var fv predict.FeatureVector
		if err := c.ShouldBindJSON(&fv); err != nil {
			return fv, fmt.Errorf("%w: %v", predict.ErrInvalidInput, err)
		}
		return fv, nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, predictResponse{
		Probability: res.Probability,
		Percent:     res.Percent(),
		HighRisk:    res.HighRisk,
		Label:       res.Label(),
		Threshold:   res.Threshold,
	})
}

// handleComparisons lists runs best first. ?limit=N keeps the top N.
func (h *handler) handleComparisons(c *gin.Context) {
	limit := -1
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(c, fmt.Errorf("%w: limit must be a non-negative integer, got %q", predict.ErrInvalidInput, raw))
			return
		}
		limit = n
	}
	table, err := h.comparisons.Table(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	snap := h.snapshot()
	sorted := table.Top(limit)
	rows := make([]comparisonRow, 0, len(sorted))
	for _, r := range sorted {
		rows = append(rows, comparisonRow{Ranked: r, DisplayName: snap.Decorate(r.ModelName)})
	}
	c.JSON(http.StatusOK, gin.H{
		"source":      h.comparisons.SourceName(),
		"comparisons": rows,
	})
}

func (h *handler) handleBestComparison(c *gin.Context) {
	table, err := h.comparisons.Table(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	summary, err := table.Summary()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func writeError(c *gin.Context, err error) {
	status, kind := classify(err)
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
}
