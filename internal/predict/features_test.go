package predict

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormLabels(t *testing.T) {
	fv, err := ParseForm(url.Values{
		"age_years":         {"45"},
		"systolic_bp":       {"120"},
		"cholesterol_level": {"1"},
		"bmi":               {"25.0"},
		"glucose_level":     {"1"},
		"gender":            {"Male"},
		"smokes":            {"No"},
	})
	require.NoError(t, err)
	row, err := fv.Row()
	require.NoError(t, err)
	assert.Equal(t, []float64{45, 120, 1, 25, 1, 1, 0}, row)
}

func TestParseFormNumericBinaries(t *testing.T) {
	fv, err := ParseForm(url.Values{"gender": {"0"}, "smokes": {"1"}})
	require.NoError(t, err)
	require.NotNil(t, fv.Gender)
	require.NotNil(t, fv.Smokes)
	assert.Equal(t, 0, *fv.Gender)
	assert.Equal(t, 1, *fv.Smokes)
}

func TestParseFormBlankFieldsAreMissing(t *testing.T) {
	fv, err := ParseForm(url.Values{"age_years": {"45"}, "bmi": {"  "}})
	require.NoError(t, err)
	assert.Nil(t, fv.BMI)

	err = fv.Validate()
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "[systolic_bp cholesterol_level bmi glucose_level gender smokes]")
}

func TestParseFormRejectsGarbage(t *testing.T) {
	_, err := ParseForm(url.Values{"age_years": {"forty"}, "smokes": {"maybe"}, "bmi": {"x"}})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), `age_years="forty"`)
	assert.Contains(t, err.Error(), `smokes="maybe"`)
	assert.Contains(t, err.Error(), `bmi="x"`)
}

func TestOutOfRangeOrdinalsAccepted(t *testing.T) {
	fv := Vector(45, 120, 7, 25, -1, 1, 0)
	assert.NoError(t, fv.Validate())
}
