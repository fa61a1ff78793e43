package dashboardhttp

import (
	"html/template"
	"net/url"
	"strings"

	"heartdash/internal/experiments"
	"heartdash/internal/explain"
	"heartdash/internal/predict"
)

var dashboardTemplateFuncs = template.FuncMap{
	"percent": experiments.FormatPercent,
	"ratio":   experiments.FormatRatio,
}

type navItem struct {
	Key   string
	Label string
	Href  string
}

var navItems = []navItem{
	{Key: "home", Label: "🏡 Home", Href: "/"},
	{Key: "predict", Label: "🩺 Predictor", Href: "/predict"},
	{Key: "compare", Label: "📊 Compare", Href: "/compare"},
	{Key: "shap", Label: "🔍 SHAP Insights", Href: "/shap"},
	{Key: "stats", Label: "📁 MLflow Stats", Href: "/stats"},
}

// chrome is the layout data shared by every page.
type chrome struct {
	Title     string
	Page      string
	Nav       []navItem
	Particles bool
	BodyClass string
	Error     string
}

type option struct {
	Value string
	Label string
}

var levelOptions = []option{
	{Value: "1", Label: "1️⃣ Normal"},
	{Value: "2", Label: "2️⃣ Above Normal"},
	{Value: "3", Label: "3️⃣ Well Above Normal"},
}

// predictForm echoes the submitted values back into the form.
type predictForm struct {
	Age         string
	SystolicBP  string
	Cholesterol string
	BMI         string
	Glucose     string
	Gender      string
	Smokes      string
}

func defaultPredictForm() predictForm {
	return predictForm{
		Age:         "45",
		SystolicBP:  "120",
		Cholesterol: "1",
		BMI:         "25.0",
		Glucose:     "1",
		Gender:      "Male",
		Smokes:      "No",
	}
}

func formFromValues(values url.Values) predictForm {
	f := defaultPredictForm()
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(values.Get(key)); v != "" {
			*dst = v
		}
	}
	set(&f.Age, "age_years")
	set(&f.SystolicBP, "systolic_bp")
	set(&f.Cholesterol, "cholesterol_level")
	set(&f.BMI, "bmi")
	set(&f.Glucose, "glucose_level")
	set(&f.Gender, "gender")
	set(&f.Smokes, "smokes")
	return f
}

type predictView struct {
	chrome
	Form   predictForm
	Levels []option
	Result *predict.Result
}

type compareRow struct {
	Rank     int
	Name     string
	Accuracy string
	F1       string
}

type compareView struct {
	chrome
	BaseAccuracy string
	Rows         []compareRow
	Source       string
}

type shapToggle struct {
	Kind     explain.PlotKind
	Title    string
	Selected bool
}

type shapView struct {
	chrome
	Toggles  []shapToggle
	ImageURL string
	Caption  string
}

type statsRow struct {
	Rank     int
	RunID    string
	Accuracy string
	F1       string
	Name     string
}

type statsView struct {
	chrome
	Rows         []statsRow
	Best         *statsRow
	Runs         int
	MeanAccuracy float64
	MeanF1       float64
	Source       string
}

type errorView struct {
	chrome
	Heading string
}
