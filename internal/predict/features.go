package predict

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FeatureNames is the column order the classifier was trained on.
var FeatureNames = []string{
	"age_years",
	"systolic_bp",
	"cholesterol_level",
	"bmi",
	"glucose_level",
	"gender",
	"smokes",
}

// FeatureVector holds one patient's inputs. Fields are pointers so a missing
// value can be told apart from a zero.
type FeatureVector struct {
	AgeYears         *int     `json:"age_years" validate:"required"`
	SystolicBP       *int     `json:"systolic_bp" validate:"required"`
	CholesterolLevel *int     `json:"cholesterol_level" validate:"required"`
	BMI              *float64 `json:"bmi" validate:"required"`
	GlucoseLevel     *int     `json:"glucose_level" validate:"required"`
	Gender           *int     `json:"gender" validate:"required"`
	Smokes           *int     `json:"smokes" validate:"required"`
}

var featureValidate = newFeatureValidator()

func newFeatureValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate fails with ErrInvalidInput naming every absent field. Values are
// not range checked.
func (v FeatureVector) Validate() error {
	err := featureValidate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return fmt.Errorf("%w: missing required input features: [%s]", ErrInvalidInput, strings.Join(missing, " "))
}

// Row returns the values in FeatureNames order. Call Validate first.
func (v FeatureVector) Row() ([]float64, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return []float64{
		float64(*v.AgeYears),
		float64(*v.SystolicBP),
		float64(*v.CholesterolLevel),
		*v.BMI,
		float64(*v.GlucoseLevel),
		float64(*v.Gender),
		float64(*v.Smokes),
	}, nil
}

// Vector builds a complete FeatureVector from plain values.
func Vector(age, systolicBP, cholesterol int, bmi float64, glucose, gender, smokes int) FeatureVector {
	return FeatureVector{
		AgeYears:         &age,
		SystolicBP:       &systolicBP,
		CholesterolLevel: &cholesterol,
		BMI:              &bmi,
		GlucoseLevel:     &glucose,
		Gender:           &gender,
		Smokes:           &smokes,
	}
}

// ParseForm maps submitted form values onto a FeatureVector. Blank fields stay
// nil so Validate reports them; unparsable values fail immediately.
func ParseForm(values url.Values) (FeatureVector, error) {
	var (
		fv   FeatureVector
		errs []string
	)
	intField := func(name string, dst **int, parse func(string) (int, error)) {
		raw := strings.TrimSpace(values.Get(name))
		if raw == "" {
			return
		}
		n, err := parse(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s=%q", name, raw))
			return
		}
		*dst = &n
	}
	intField("age_years", &fv.AgeYears, strconv.Atoi)
	intField("systolic_bp", &fv.SystolicBP, strconv.Atoi)
	intField("cholesterol_level", &fv.CholesterolLevel, strconv.Atoi)
	intField("glucose_level", &fv.GlucoseLevel, strconv.Atoi)
	intField("gender", &fv.Gender, binaryParser("male", "female"))
	intField("smokes", &fv.Smokes, binaryParser("yes", "no"))
	if raw := strings.TrimSpace(values.Get("bmi")); raw != "" {
		bmi, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("bmi=%q", raw))
		} else {
			fv.BMI = &bmi
		}
	}
	if len(errs) > 0 {
		return fv, fmt.Errorf("%w: unparsable values %s", ErrInvalidInput, strings.Join(errs, ", "))
	}
	return fv, nil
}

// binaryParser accepts 1/0 or the word pair used by the form labels.
func binaryParser(one, zero string) func(string) (int, error) {
	return func(raw string) (int, error) {
		switch strings.ToLower(raw) {
		case "1", one:
			return 1, nil
		case "0", zero:
			return 0, nil
		}
		return 0, fmt.Errorf("expected %s or %s", one, zero)
	}
}
