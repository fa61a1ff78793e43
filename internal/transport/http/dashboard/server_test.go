package dashboardhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"heartdash/internal/artifact"
	"heartdash/internal/catalog"
	"heartdash/internal/experiments"
	"heartdash/internal/metrics"
	"heartdash/internal/predict"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pinnedDump = "../../../classifier/testdata/lgbm_7_feature.json"

var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

const comparisonsJSON = `[
  {"run_id": "a1", "accuracy": 0.728, "f1_score": 0.71, "model_name": "XGB_FEATURES"},
  {"run_id": "a2", "accuracy": 0.7391, "f1_score": 0.7204, "model_name": "XGBoost_Optuna_Tuned"},
  {"run_id": "a3", "accuracy": 0.735, "f1_score": 0.715, "model_name": "LightGBM_XGB_FEATURES"}
]`

type fixture struct {
	comparisons bool
	shapDot     bool
	title       string
	catalog     Catalog
	classifier  predict.Classifier
	metrics     *metrics.Metrics
	// images wraps the store handed to the server when set.
	images      func(*artifact.Store) Images
}

// countingImages records how often plot bytes are read.
type countingImages struct {
	*artifact.Store
	loads int
}

func (c *countingImages) LoadImage(id artifact.ID) (artifact.Image, error) {
	c.loads++
	return c.Store.LoadImage(id)
}

type failingClassifier struct{}

func (failingClassifier) PredictProba([]float64) (float64, error) {
	return 0, errors.New("booster exploded")
}

func newTestServer(t *testing.T, fx fixture) http.Handler {
	t.Helper()
	root := t.TempDir()
	write := func(rel string, data []byte) {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
	dump, err := os.ReadFile(pinnedDump)
	require.NoError(t, err)
	write("models/model.json", dump)
	write("shap_plots/bar.png", tinyPNG)
	if fx.comparisons {
		write("mlruns/comparisons.json", []byte(comparisonsJSON))
	}
	if fx.shapDot {
		write("shap_plots/dot.png", tinyPNG)
	}
	store, err := artifact.Open(root, map[artifact.ID]string{
		artifact.Model:       "models/model.json",
		artifact.Comparisons: "mlruns/comparisons.json",
		artifact.ShapBar:     "shap_plots/bar.png",
		artifact.ShapDot:     "shap_plots/dot.png",
	})
	require.NoError(t, err)

	clf := fx.classifier
	if clf == nil {
		ens, err := predict.LoadEnsemble(store)
		require.NoError(t, err)
		clf = ens
	}
	svc, err := predict.NewService(clf)
	require.NoError(t, err)

	title := fx.title
	if title == "" {
		title = "Heart Risk Predictor"
	}
	var images Images = store
	if fx.images != nil {
		images = fx.images(store)
	}
	srv, err := NewServer(ServerConfig{
		Title:       title,
		Predictor:   svc,
		Comparisons: experiments.NewLoader(experiments.NewJSONSource(store)),
		Images:      images,
		Catalog:     fx.catalog,
		Metrics:     fx.metrics,
	})
	require.NoError(t, err)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func referenceForm() url.Values {
	return url.Values{
		"age_years":         {"45"},
		"systolic_bp":       {"120"},
		"cholesterol_level": {"1"},
		"bmi":               {"25.0"},
		"glucose_level":     {"1"},
		"gender":            {"Male"},
		"smokes":            {"No"},
	}
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	require.Error(t, err)
}

func TestHomePage(t *testing.T) {
	h := newTestServer(t, fixture{comparisons: true})
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Welcome to Heart Risk Predictor")
	assert.Contains(t, body, `id="bgCanvas"`)
	assert.Contains(t, body, `class="selected">🏡 Home`)
}

func TestTitleComesFromConfigWithoutCatalogOverride(t *testing.T) {
	cat, err := catalog.New("")
	require.NoError(t, err)
	h := newTestServer(t, fixture{title: "Custom Clinic Dashboard", catalog: cat})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>Custom Clinic Dashboard</title>")
	assert.Contains(t, rec.Body.String(), "Welcome to Custom Clinic Dashboard")
}

func TestCatalogTitleOverridesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: Ward 7 Board\n"), 0o644))
	cat, err := catalog.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	h := newTestServer(t, fixture{title: "Custom Clinic Dashboard", catalog: cat})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Contains(t, rec.Body.String(), "<title>Ward 7 Board</title>")
}

func TestParticlesOnEveryPage(t *testing.T) {
	h := newTestServer(t, fixture{comparisons: true})
	for _, path := range []string{"/", "/predict", "/compare", "/shap", "/stats", "/nope"} {
		rec := do(t, h, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Contains(t, rec.Body.String(), `id="bgCanvas"`, path)
		assert.Contains(t, rec.Body.String(), "/static/particles.js", path)
	}
}

func TestStaticAssetsAreServed(t *testing.T) {
	h := newTestServer(t, fixture{})
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPredictFormDefaults(t *testing.T) {
	h := newTestServer(t, fixture{})
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/predict", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `name="age_years" min="18" max="100" step="1" value="45"`)
	assert.NotContains(t, body, "Prediction Result")
}

func TestPredictFormScoresReferenceInput(t *testing.T) {
	h := newTestServer(t, fixture{})
	rec := do(t, h, postForm("/predict", referenceForm()))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "34.30 %")
	assert.Contains(t, body, "Low Risk")
	assert.NotContains(t, body, "High Risk Detected")
}

func TestPredictFormHighRisk(t *testing.T) {
	h := newTestServer(t, fixture{})
	form := referenceForm()
	form.Set("age_years", "67")
	form.Set("smokes", "Yes")
	rec := do(t, h, postForm("/predict", form))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "High Risk Detected!")
}

func TestPredictFormMissingField(t *testing.T) {
	h := newTestServer(t, fixture{})
	form := referenceForm()
	form.Del("bmi")
	rec := do(t, h, postForm("/predict", form))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "missing required input features: [bmi]")
	assert.NotContains(t, body, "Prediction Result")
}

func TestAPIPredict(t *testing.T) {
	h := newTestServer(t, fixture{})
	rec := do(t, h, postJSON("/api/v1/predict",
		`{"age_years":45,"systolic_bp":120,"cholesterol_level":1,"bmi":25.0,"glucose_level":1,"gender":1,"smokes":0}`))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp predictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 0.34298953732650117, resp.Probability, 1e-12)
	assert.Equal(t, "34.30", resp.Percent)
	assert.False(t, resp.HighRisk)
	assert.Equal(t, "Low Risk", resp.Label)
	assert.Equal(t, 0.5, resp.Threshold)
}

func TestAPIPredictErrors(t *testing.T) {
	cases := []struct {
		name   string
		fx     fixture
		body   string
		status int
		kind   string
		msg    string
	}{
		{
			name:   "missing fields",
			body:   `{"age_years":45,"systolic_bp":120}`,
			status: http.StatusBadRequest,
			kind:   kindInvalidInput,
			msg:    "missing required input features: [cholesterol_level bmi glucose_level gender smokes]",
		},
		{
			name:   "malformed json",
			body:   `{"age_years":`,
			status: http.StatusBadRequest,
			kind:   kindInvalidInput,
		},
		{
			name:   "wrong type",
			body:   `{"age_years":"old"}`,
			status: http.StatusBadRequest,
			kind:   kindInvalidInput,
		},
		{
			name:   "classifier failure",
			fx:     fixture{classifier: failingClassifier{}},
			body:   `{"age_years":45,"systolic_bp":120,"cholesterol_level":1,"bmi":25.0,"glucose_level":1,"gender":1,"smokes":0}`,
			status: http.StatusInternalServerError,
			kind:   kindClassifier,
			msg:    "booster exploded",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(t, tc.fx)
			rec := do(t, h, postJSON("/api/v1/predict", tc.body))
			require.Equal(t, tc.status, rec.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.kind, resp["kind"])
			if tc.msg != "" {
				assert.Contains(t, resp["error"], tc.msg)
			}
		})
	}
}

func TestComparePage(t *testing.T) {
	h := newTestServer(t, fixture{comparisons: true})
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/compare", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "72.8%")
	assert.Contains(t, body, "Top 3 Models")
	best := strings.Index(body, "🚀 XGBoost_Optuna_Tuned")
	worst := strings.Index(body, "📦 XGB_FEATURES")
	require.NotEqual(t, -1, best)
	require.NotEqual(t, -1, worst)
	assert.Less(t, best, worst)
	assert.Contains(t, body, "73.91%")
	assert.Contains(t, body, `src="/compare/chart"`)
}

func TestComparePageMissingArtifact(t *testing.T) {
	h := newTestServer(t, fixture{})
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/compare", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Comparison data unavailable")
	assert.NotContains(t, body, "Top 0 Models")
}

func TestCompareChart(t *testing.T) {
	h := newTestServer(t, fixture{comparisons: true})
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/compare/chart", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "echarts")

	h = newTestServer(t, fixture{})
	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/compare/chart", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShapPage(t *testing.T) {
	h := newTestServer(t, fixture{})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/shap", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `src="/shap/image/bar"`)
	assert.Contains(t, rec.Body.String(), "Top Features - Mean SHAP Value (Bar)")

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/shap?plot=dot", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "SHAP plot unavailable")
	assert.NotContains(t, rec.Body.String(), "/shap/image/dot")

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/shap?plot=pie", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown SHAP plot type")
}

func TestShapPageDoesNotReadPlotBytes(t *testing.T) {
	var images *countingImages
	h := newTestServer(t, fixture{images: func(s *artifact.Store) Images {
		images = &countingImages{Store: s}
		return images
	}})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/shap", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, images.loads)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/shap/image/bar", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, images.loads)
}

func TestShapImage(t *testing.T) {
	h := newTestServer(t, fixture{shapDot: true})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/shap/image/dot", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, tinyPNG, rec.Body.Bytes())

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/shap/image/pie", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShapImageMissing(t *testing.T) {
	h := newTestServer(t, fixture{})
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/shap/image/dot", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsPage(t *testing.T) {
	h := newTestServer(t, fixture{comparisons: true})
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<code>XGBoost_Optuna_Tuned</code>")
	assert.Contains(t, body, "Accuracy: 0.7391")
	assert.Contains(t, body, "F1 Score: 0.7204")
	// Stats keep load order.
	assert.Less(t, strings.Index(body, "<code>a1</code>"), strings.Index(body, "<code>a2</code>"))
}

func TestStatsPageMissingArtifact(t *testing.T) {
	h := newTestServer(t, fixture{})
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Experiment stats unavailable")
}

func TestAPIComparisons(t *testing.T) {
	h := newTestServer(t, fixture{comparisons: true})
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/comparisons", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Source      string          `json:"source"`
		Comparisons []comparisonRow `json:"comparisons"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Comparisons, 3)
	assert.Equal(t, "comparisons artifact", resp.Source)
	assert.Equal(t, "a2", resp.Comparisons[0].RunID)
	assert.Equal(t, 1, resp.Comparisons[0].Rank)
	assert.Equal(t, "🚀 XGBoost_Optuna_Tuned", resp.Comparisons[0].DisplayName)
	assert.Equal(t, "a1", resp.Comparisons[2].RunID)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/comparisons/best", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var summary experiments.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.Runs)
	assert.Equal(t, "a2", summary.Best.RunID)
}

func TestAPIComparisonsLimit(t *testing.T) {
	h := newTestServer(t, fixture{comparisons: true})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/comparisons?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Comparisons []comparisonRow `json:"comparisons"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Comparisons, 2)
	assert.Equal(t, "a2", resp.Comparisons[0].RunID)
	assert.Equal(t, "a3", resp.Comparisons[1].RunID)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/comparisons?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Comparisons, 3)

	for _, bad := range []string{"-1", "two"} {
		rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/comparisons?limit="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Contains(t, rec.Body.String(), kindInvalidInput, bad)
	}
}

func TestAPIPredictCanceledRequest(t *testing.T) {
	m := metrics.New()
	h := newTestServer(t, fixture{metrics: m})

	req := postJSON("/api/v1/predict", `{"age_years":45,"systolic_bp":120,"cholesterol_level":1,"bmi":25.0,"glucose_level":1,"gender":1,"smokes":0}`)
	ctx, cancel := context.WithCancel(req.Context())
	cancel()
	rec := do(t, h, req.WithContext(ctx))
	assert.Equal(t, statusClientClosedRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), kindCanceled)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `heartdash_prediction_errors_total{kind="canceled"} 1`)
}

func TestAPIComparisonsMissing(t *testing.T) {
	h := newTestServer(t, fixture{})
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/comparisons/best", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), kindNotFound)
}

func TestHealthMetricsAndRequestID(t *testing.T) {
	h := newTestServer(t, fixture{metrics: metrics.New()})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec = do(t, h, req)
	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))

	do(t, h, postForm("/predict", referenceForm()))
	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `heartdash_predictions_total{label="low"} 1`)
}

func TestNotFound(t *testing.T) {
	h := newTestServer(t, fixture{})
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page not found")

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{artifact.ErrNotFound, http.StatusNotFound, kindNotFound},
		{experiments.ErrEmpty, http.StatusNotFound, kindNotFound},
		{predict.ErrInvalidInput, http.StatusBadRequest, kindInvalidInput},
		{predict.ErrModelUnavailable, http.StatusServiceUnavailable, kindModelUnavailable},
		{predict.ErrClassifier, http.StatusInternalServerError, kindClassifier},
		{context.Canceled, statusClientClosedRequest, kindCanceled},
		{fmt.Errorf("score: %w", context.DeadlineExceeded), statusClientClosedRequest, kindCanceled},
		{errors.New("other"), http.StatusInternalServerError, kindInternal},
	}
	for _, tc := range cases {
		status, kind := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.kind, kind, tc.err.Error())
	}
}
