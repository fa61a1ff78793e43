package config

import "strings"

const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppLogFormat = "text"
	defaultAppHTTPAddr  = ":8501"
	defaultAppTitle     = "Heart Risk Predictor"
	defaultArtifactRoot = "."
	defaultModelFile    = "models/final_7_feature_lgbm.json"
	defaultComparisons  = "mlruns/final_model_comparisons.json"
	defaultShapBar      = "shap_plots/shap_summary_bar.png"
	defaultShapDot      = "shap_plots/shap_summary_dot.png"

	// DefaultThreshold is the decision boundary the model shipped with. It was
	// never tuned, so it stays a constant unless a config overrides it.
	DefaultThreshold = 0.5
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Artifacts.applyDefaults(keys)
	c.Predict.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.title", &a.Title, defaultAppTitle),
	)
}

func (a *ArtifactsConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("artifacts.root", &a.Root, defaultArtifactRoot),
		stringFieldDefault("artifacts.model", &a.Model, defaultModelFile),
		stringFieldDefault("artifacts.comparisons", &a.Comparisons, defaultComparisons),
		stringFieldDefault("artifacts.shap_bar", &a.ShapBar, defaultShapBar),
		stringFieldDefault("artifacts.shap_dot", &a.ShapDot, defaultShapDot),
	)
	a.TrackingDB = strings.TrimSpace(a.TrackingDB)
	a.Catalog = strings.TrimSpace(a.Catalog)
}

func (p *PredictConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "predict.threshold",
			need:  func() bool { return p.Threshold == 0 },
			apply: func() { p.Threshold = DefaultThreshold },
		},
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
