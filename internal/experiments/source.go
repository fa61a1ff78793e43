package experiments

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"heartdash/internal/artifact"
	"heartdash/internal/pkg/jsonutil"

	"github.com/tidwall/gjson"
)

// Source yields the comparison runs.
type Source interface {
	Name() string
	Records(ctx context.Context) ([]Record, error)
}

const comparisonsSchema = `{
  "type": "array",
  "items": {"type": "object"}
}`

var compiledComparisonsSchema = jsonutil.MustCompileSchema("comparisons.json", comparisonsSchema)

// Column aliases. The snake_case names are what the pipeline writes today;
// the spaced names are what pandas' to_json(orient="records") emits for the
// comparison DataFrame.
var (
	runIDKeys     = []string{"run_id", "Run ID"}
	accuracyKeys  = []string{"accuracy", "Accuracy"}
	f1Keys        = []string{"f1_score", "F1 Score", "f1"}
	modelNameKeys = []string{"model_name", "Model Name"}
)

// ParseComparisons decodes the comparisons artifact. Every row needs an
// accuracy and a model name; a bad row fails the whole document.
func ParseComparisons(data []byte) ([]Record, error) {
	if err := jsonutil.ValidateDocument(compiledComparisonsSchema, data); err != nil {
		return nil, fmt.Errorf("comparisons artifact: %w", err)
	}
	var (
		out    []Record
		rowErr error
	)
	gjson.ParseBytes(data).ForEach(func(idx, row gjson.Result) bool {
		rec, err := parseRow(row)
		if err != nil {
			rowErr = fmt.Errorf("comparisons artifact row %d: %w", idx.Int()+1, err)
			return false
		}
		out = append(out, rec)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return out, nil
}

func parseRow(row gjson.Result) (Record, error) {
	acc := firstOf(row, accuracyKeys)
	if acc.Type != gjson.Number {
		return Record{}, fmt.Errorf("accuracy missing or not a number")
	}
	name := strings.TrimSpace(firstOf(row, modelNameKeys).String())
	if name == "" {
		return Record{}, fmt.Errorf("model name missing")
	}
	return Record{
		RunID:     strings.TrimSpace(firstOf(row, runIDKeys).String()),
		Accuracy:  acc.Float(),
		F1Score:   firstOf(row, f1Keys).Float(),
		ModelName: name,
	}, nil
}

func firstOf(row gjson.Result, keys []string) gjson.Result {
	for _, k := range keys {
		if v := row.Get(gjson.Escape(k)); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

// ArtifactLoader is the slice of the artifact store a JSONSource needs.
type ArtifactLoader interface {
	Load(id artifact.ID) ([]byte, error)
}

// JSONSource reads the comparisons artifact.
type JSONSource struct {
	store ArtifactLoader
}

func NewJSONSource(store ArtifactLoader) *JSONSource {
	return &JSONSource{store: store}
}

func (s *JSONSource) Name() string { return "comparisons artifact" }

func (s *JSONSource) Records(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.store.Load(artifact.Comparisons)
	if err != nil {
		return nil, err
	}
	return ParseComparisons(data)
}

// Loader memoizes the first successful load of a Source. Failed loads are
// not cached, so a page that hit a missing artifact sees it once it appears.
type Loader struct {
	src Source

	mu    sync.Mutex
	table *Table
}

func NewLoader(src Source) *Loader {
	return &Loader{src: src}
}

// SourceName describes where the runs come from.
func (l *Loader) SourceName() string {
	return l.src.Name()
}

// Table returns the loaded comparison table.
func (l *Loader) Table(ctx context.Context) (Table, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.table != nil {
		return *l.table, nil
	}
	records, err := l.src.Records(ctx)
	if err != nil {
		return Table{}, fmt.Errorf("load %s: %w", l.src.Name(), err)
	}
	t := NewTable(records)
	l.table = &t
	return t, nil
}
