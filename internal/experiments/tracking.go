package experiments

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// The models below map the subset of the MLflow sqlite backend store that
// the dashboard reads. The store is opened read-only and never migrated.

type experimentModel struct {
	ExperimentID   int64  `gorm:"column:experiment_id;primaryKey"`
	Name           string `gorm:"column:name"`
	LifecycleStage string `gorm:"column:lifecycle_stage"`
}

func (experimentModel) TableName() string { return "experiments" }

type runModel struct {
	RunUUID        string `gorm:"column:run_uuid;primaryKey"`
	Name           string `gorm:"column:name"`
	Status         string `gorm:"column:status"`
	StartTime      int64  `gorm:"column:start_time"`
	LifecycleStage string `gorm:"column:lifecycle_stage"`
	ExperimentID   int64  `gorm:"column:experiment_id"`
}

func (runModel) TableName() string { return "runs" }

type latestMetricModel struct {
	Key       string  `gorm:"column:key;primaryKey"`
	RunUUID   string  `gorm:"column:run_uuid;primaryKey"`
	Value     float64 `gorm:"column:value"`
	Timestamp int64   `gorm:"column:timestamp"`
	Step      int64   `gorm:"column:step"`
	IsNaN     bool    `gorm:"column:is_nan"`
}

func (latestMetricModel) TableName() string { return "latest_metrics" }

type tagModel struct {
	Key     string `gorm:"column:key;primaryKey"`
	Value   string `gorm:"column:value"`
	RunUUID string `gorm:"column:run_uuid;primaryKey"`
}

func (tagModel) TableName() string { return "tags" }

const (
	activeStage    = "active"
	runNameTag     = "mlflow.runName"
	modelNameTag   = "model_name"
	accuracyMetric = "accuracy"
	f1ScoreMetric  = "f1_score"
)

// TrackingStore reads comparison runs from an MLflow sqlite backend store.
type TrackingStore struct {
	db         *gorm.DB
	experiment string
}

// OpenTrackingStore opens path read-only. When experiment is non-empty only
// runs of that experiment are listed.
func OpenTrackingStore(path, experiment string) (*TrackingStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("tracking store: path cannot be empty")
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("tracking store %s: %w", path, err)
		}
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &TrackingStore{db: db, experiment: strings.TrimSpace(experiment)}, nil
}

// Close releases the underlying connection pool.
func (s *TrackingStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *TrackingStore) Name() string {
	if s.experiment != "" {
		return fmt.Sprintf("mlflow experiment %q", s.experiment)
	}
	return "mlflow tracking store"
}

// Records lists active runs ordered by start time. Runs without an accuracy
// metric are not comparison runs and are skipped.
func (s *TrackingStore) Records(ctx context.Context) ([]Record, error) {
	db := s.db.WithContext(ctx)
	q := db.Model(&runModel{}).Select("runs.*").Where("runs.lifecycle_stage = ?", activeStage)
	if s.experiment != "" {
		q = q.Joins("JOIN experiments ON experiments.experiment_id = runs.experiment_id").
			Where("experiments.name = ?", s.experiment)
	}
	var runs []runModel
	if err := q.Order("runs.start_time ASC").Order("runs.run_uuid ASC").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.RunUUID
	}

	var metrics []latestMetricModel
	if err := db.Where("run_uuid IN ? AND key IN ?", ids, []string{accuracyMetric, f1ScoreMetric}).
		Find(&metrics).Error; err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	type runMetrics struct {
		acc, f1       float64
		hasAcc, hasF1 bool
	}
	byRun := make(map[string]*runMetrics, len(runs))
	for _, m := range metrics {
		if m.IsNaN {
			continue
		}
		rm := byRun[m.RunUUID]
		if rm == nil {
			rm = &runMetrics{}
			byRun[m.RunUUID] = rm
		}
		switch m.Key {
		case accuracyMetric:
			rm.acc, rm.hasAcc = m.Value, true
		case f1ScoreMetric:
			rm.f1, rm.hasF1 = m.Value, true
		}
	}

	var tags []tagModel
	if err := db.Where("run_uuid IN ? AND key IN ?", ids, []string{modelNameTag, runNameTag}).
		Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	names := make(map[string]map[string]string, len(runs))
	for _, t := range tags {
		if names[t.RunUUID] == nil {
			names[t.RunUUID] = make(map[string]string, 2)
		}
		names[t.RunUUID][t.Key] = strings.TrimSpace(t.Value)
	}

	out := make([]Record, 0, len(runs))
	for _, r := range runs {
		rm := byRun[r.RunUUID]
		if rm == nil || !rm.hasAcc {
			continue
		}
		out = append(out, Record{
			RunID:     r.RunUUID,
			Accuracy:  rm.acc,
			F1Score:   rm.f1,
			ModelName: modelName(r, names[r.RunUUID]),
		})
	}
	return out, nil
}

func modelName(r runModel, tags map[string]string) string {
	for _, candidate := range []string{tags[modelNameTag], tags[runNameTag], strings.TrimSpace(r.Name)} {
		if candidate != "" {
			return candidate
		}
	}
	return r.RunUUID
}
