package scoring

import (
	"strings"

	"github.com/shopspring/decimal"

	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
)

// Weights are the component coefficients. They must sum to exactly 1.
type Weights struct {
	Technical     decimal.Decimal
	Interpersonal decimal.Decimal
	Attendance    decimal.Decimal
	Initiative    decimal.Decimal
	Report        decimal.Decimal
}

// DefaultWeights returns 0.30/0.20/0.15/0.15/0.20.
func DefaultWeights() Weights {
	return Weights{
		Technical:     decimal.RequireFromString("0.30"),
		Interpersonal: decimal.RequireFromString("0.20"),
		Attendance:    decimal.RequireFromString("0.15"),
		Initiative:    decimal.RequireFromString("0.15"),
		Report:        decimal.RequireFromString("0.20"),
	}
}

// ParseWeights reads weights from configuration strings. Blank values fall back to defaults.
func ParseWeights(technical, interpersonal, attendance, initiative, report string) (Weights, error) {
	defaults := DefaultWeights()
	w := Weights{}
	fields := []struct {
		name     string
		raw      string
		fallback decimal.Decimal
		dst      *decimal.Decimal
	}{
		{"technical", technical, defaults.Technical, &w.Technical},
		{"interpersonal", interpersonal, defaults.Interpersonal, &w.Interpersonal},
		{"attendance", attendance, defaults.Attendance, &w.Attendance},
		{"initiative", initiative, defaults.Initiative, &w.Initiative},
		{"report_quality", report, defaults.Report, &w.Report},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(f.raw)
		if raw == "" {
			*f.dst = f.fallback
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return Weights{}, appErrors.WrapAs(err, appErrors.ErrInvalidWeights, "weight "+f.name+" is not a decimal")
		}
		*f.dst = v
	}
	return w, w.Validate()
}

// Sum returns the total of all weights.
func (w Weights) Sum() decimal.Decimal {
	return w.Technical.Add(w.Interpersonal).Add(w.Attendance).Add(w.Initiative).Add(w.Report)
}

// Validate checks every weight is non-negative and the total is exactly 1.
func (w Weights) Validate() error {
	for _, v := range []decimal.Decimal{w.Technical, w.Interpersonal, w.Attendance, w.Initiative, w.Report} {
		if v.IsNegative() {
			return appErrors.Clone(appErrors.ErrInvalidWeights, "weights must be non-negative")
		}
	}
	if sum := w.Sum(); !sum.Equal(decimal.NewFromInt(1)) {
		return appErrors.Clonef(appErrors.ErrInvalidWeights, "weights sum to %s, expected 1", sum.String())
	}
	return nil
}
