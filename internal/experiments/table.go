// Package experiments holds the offline model comparison runs shown on the
// compare and stats pages.
package experiments

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// ErrEmpty is returned by aggregate queries on a table without rows.
var ErrEmpty = errors.New("comparison table is empty")

// Record is one offline experiment run.
type Record struct {
	RunID     string  `json:"run_id"`
	Accuracy  float64 `json:"accuracy"`
	F1Score   float64 `json:"f1_score"`
	ModelName string  `json:"model_name"`
}

// Ranked is a record with its 1-based position in a ranking.
type Ranked struct {
	Rank int `json:"rank"`
	Record
}

// Table is an immutable set of runs in load order.
type Table struct {
	records []Record
}

func NewTable(records []Record) Table {
	return Table{records: append([]Record(nil), records...)}
}

func (t Table) Len() int {
	return len(t.records)
}

// Records returns the runs in load order, numbered from 1.
func (t Table) Records() []Ranked {
	return rank(t.records)
}

// SortedByAccuracy orders runs by accuracy, highest first. The sort is
// stable: equal accuracies keep their load order, so identical input always
// yields the identical ranking.
func (t Table) SortedByAccuracy() []Ranked {
	sorted := append([]Record(nil), t.records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Accuracy > sorted[j].Accuracy
	})
	return rank(sorted)
}

// Top returns at most n runs from SortedByAccuracy.
func (t Table) Top(n int) []Ranked {
	sorted := t.SortedByAccuracy()
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// Best returns the first run holding the maximum accuracy.
func (t Table) Best() (Record, error) {
	if len(t.records) == 0 {
		return Record{}, ErrEmpty
	}
	best := t.records[0]
	for _, r := range t.records[1:] {
		if r.Accuracy > best.Accuracy {
			best = r
		}
	}
	return best, nil
}

// Summary aggregates a table for the stats page.
type Summary struct {
	Runs         int     `json:"runs"`
	Best         Record  `json:"best"`
	MeanAccuracy float64 `json:"mean_accuracy"`
	MeanF1       float64 `json:"mean_f1_score"`
}

func (t Table) Summary() (Summary, error) {
	best, err := t.Best()
	if err != nil {
		return Summary{}, err
	}
	accSum, f1Sum := decimal.Zero, decimal.Zero
	for _, r := range t.records {
		accSum = accSum.Add(decimal.NewFromFloat(r.Accuracy))
		f1Sum = f1Sum.Add(decimal.NewFromFloat(r.F1Score))
	}
	n := decimal.NewFromInt(int64(len(t.records)))
	return Summary{
		Runs:         len(t.records),
		Best:         best,
		MeanAccuracy: accSum.Div(n).InexactFloat64(),
		MeanF1:       f1Sum.Div(n).InexactFloat64(),
	}, nil
}

func rank(records []Record) []Ranked {
	out := make([]Ranked, len(records))
	for i, r := range records {
		out[i] = Ranked{Rank: i + 1, Record: r}
	}
	return out
}

// FormatPercent renders a 0..1 metric as "91.23%". Zero renders as "N/A".
func FormatPercent(v float64) string {
	if v == 0 {
		return "N/A"
	}
	return decimal.NewFromFloat(v).Shift(2).StringFixed(2) + "%"
}

// FormatRatio renders a metric with four decimals.
func FormatRatio(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(4)
}
