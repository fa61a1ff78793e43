// Package classifier evaluates gradient-boosted tree ensembles exported with
// LightGBM's Booster.dump_model() as JSON.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"heartdash/internal/pkg/jsonutil"

	"github.com/tidwall/gjson"
)

var (
	// ErrInvalidModel marks a dump that cannot be turned into an ensemble.
	ErrInvalidModel = errors.New("invalid model dump")
	// ErrFeatureMismatch is returned when a row or expected feature order
	// does not match the trained feature order.
	ErrFeatureMismatch = errors.New("feature mismatch")
)

// zeroThreshold mirrors LightGBM's kZeroThreshold.
const zeroThreshold = 1e-35

const dumpSchema = `{
  "type": "object",
  "required": ["objective", "feature_names", "tree_info"],
  "properties": {
    "objective": {"type": "string", "minLength": 1},
    "num_class": {"type": "integer", "const": 1},
    "feature_names": {"type": "array", "minItems": 1, "items": {"type": "string"}},
    "average_output": {"type": "boolean"},
    "tree_info": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["tree_structure"],
        "properties": {"tree_structure": {"type": "object"}}
      }
    }
  }
}`

var compiledDumpSchema = jsonutil.MustCompileSchema("lightgbm_dump.json", dumpSchema)

type missingType uint8

const (
	missingNone missingType = iota
	missingZero
	missingNaN
)

type node struct {
	leaf        bool
	value       float64
	feature     int
	threshold   float64
	categorical bool
	categories  map[int]struct{}
	defaultLeft bool
	missing     missingType
	left        *node
	right       *node
}

// Ensemble is an immutable binary classifier. It is safe for concurrent use.
type Ensemble struct {
	features      []string
	trees         []*node
	sigmoid       float64
	averageOutput bool
}

// Load parses a dump_model() JSON document.
func Load(data []byte) (*Ensemble, error) {
	if err := jsonutil.ValidateDocument(compiledDumpSchema, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	doc := gjson.ParseBytes(data)
	sigmoid, err := parseObjective(doc.Get("objective").String())
	if err != nil {
		return nil, err
	}
	var features []string
	for _, f := range doc.Get("feature_names").Array() {
		features = append(features, f.String())
	}
	e := &Ensemble{
		features:      features,
		sigmoid:       sigmoid,
		averageOutput: doc.Get("average_output").Bool(),
	}
	for i, info := range doc.Get("tree_info").Array() {
		root, err := parseNode(info.Get("tree_structure"), len(features))
		if err != nil {
			return nil, fmt.Errorf("%w: tree %d: %v", ErrInvalidModel, i, err)
		}
		e.trees = append(e.trees, root)
	}
	return e, nil
}

// parseObjective accepts "binary" and "binary sigmoid:<k>".
func parseObjective(raw string) (float64, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 || fields[0] != "binary" {
		return 0, fmt.Errorf("%w: unsupported objective %q", ErrInvalidModel, raw)
	}
	sigmoid := 1.0
	for _, f := range fields[1:] {
		val, ok := strings.CutPrefix(f, "sigmoid:")
		if !ok {
			continue
		}
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil || parsed <= 0 {
			return 0, fmt.Errorf("%w: bad sigmoid in objective %q", ErrInvalidModel, raw)
		}
		sigmoid = parsed
	}
	return sigmoid, nil
}

func parseNode(raw gjson.Result, numFeatures int) (*node, error) {
	if !raw.IsObject() {
		return nil, fmt.Errorf("node is not an object")
	}
	if !raw.Get("split_feature").Exists() {
		leaf := raw.Get("leaf_value")
		if !leaf.Exists() {
			return nil, fmt.Errorf("node has neither split_feature nor leaf_value")
		}
		return &node{leaf: true, value: leaf.Float()}, nil
	}
	n := &node{
		feature:     int(raw.Get("split_feature").Int()),
		defaultLeft: raw.Get("default_left").Bool(),
	}
	if n.feature < 0 || n.feature >= numFeatures {
		return nil, fmt.Errorf("split_feature %d out of range", n.feature)
	}
	switch strings.ToLower(raw.Get("missing_type").String()) {
	case "", "none":
		n.missing = missingNone
	case "zero":
		n.missing = missingZero
	case "nan":
		n.missing = missingNaN
	default:
		return nil, fmt.Errorf("unknown missing_type %q", raw.Get("missing_type").String())
	}
	switch dt := raw.Get("decision_type").String(); dt {
	case "<=", "":
		threshold := raw.Get("threshold")
		if threshold.Type != gjson.Number {
			return nil, fmt.Errorf("numerical split needs a numeric threshold")
		}
		n.threshold = threshold.Float()
	case "==":
		n.categorical = true
		n.categories = make(map[int]struct{})
		for _, part := range strings.Split(raw.Get("threshold").String(), "||") {
			cat, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, fmt.Errorf("bad categorical threshold %q", raw.Get("threshold").String())
			}
			n.categories[cat] = struct{}{}
		}
	default:
		return nil, fmt.Errorf("unsupported decision_type %q", dt)
	}
	var err error
	if n.left, err = parseNode(raw.Get("left_child"), numFeatures); err != nil {
		return nil, fmt.Errorf("left of feature %d: %w", n.feature, err)
	}
	if n.right, err = parseNode(raw.Get("right_child"), numFeatures); err != nil {
		return nil, fmt.Errorf("right of feature %d: %w", n.feature, err)
	}
	return n, nil
}

// FeatureNames returns the trained feature order.
func (e *Ensemble) FeatureNames() []string {
	return append([]string(nil), e.features...)
}

// NumTrees reports the number of boosting rounds in the dump.
func (e *Ensemble) NumTrees() int {
	return len(e.trees)
}

// ExpectFeatures fails unless names matches the trained order exactly.
func (e *Ensemble) ExpectFeatures(names []string) error {
	if len(names) != len(e.features) {
		return fmt.Errorf("%w: model has %d features, expected %d", ErrFeatureMismatch, len(e.features), len(names))
	}
	for i, name := range names {
		if e.features[i] != name {
			return fmt.Errorf("%w: position %d is %q in the model, expected %q", ErrFeatureMismatch, i, e.features[i], name)
		}
	}
	return nil
}

// RawScore sums the leaf outputs for row before the sigmoid transform.
func (e *Ensemble) RawScore(row []float64) (float64, error) {
	if len(row) != len(e.features) {
		return 0, fmt.Errorf("%w: got %d values for %d features", ErrFeatureMismatch, len(row), len(e.features))
	}
	var sum float64
	for _, tree := range e.trees {
		sum += tree.eval(row)
	}
	if e.averageOutput && len(e.trees) > 0 {
		sum /= float64(len(e.trees))
	}
	return sum, nil
}

// PredictProba returns the positive class probability for row.
func (e *Ensemble) PredictProba(row []float64) (float64, error) {
	raw, err := e.RawScore(row)
	if err != nil {
		return 0, err
	}
	return 1 / (1 + math.Exp(-e.sigmoid*raw)), nil
}

func (n *node) eval(row []float64) float64 {
	cur := n
	for !cur.leaf {
		if cur.goLeft(row[cur.feature]) {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}
	return cur.value
}

func (n *node) goLeft(fval float64) bool {
	if n.categorical {
		if math.IsNaN(fval) {
			if n.missing == missingNaN {
				return false
			}
			fval = 0
		}
		cat := int(fval)
		if cat < 0 {
			return false
		}
		_, ok := n.categories[cat]
		return ok
	}
	if math.IsNaN(fval) && n.missing != missingNaN {
		fval = 0
	}
	if (n.missing == missingZero && fval >= -zeroThreshold && fval <= zeroThreshold) ||
		(n.missing == missingNaN && math.IsNaN(fval)) {
		return n.defaultLeft
	}
	return fval <= n.threshold
}
