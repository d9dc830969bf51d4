// Package scoring turns evaluation criteria into an overall score on a 0–20
// scale and a letter mention. Everything here is pure and safe for concurrent use.
package scoring

import (
	"fmt"

	"github.com/shopspring/decimal"

	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
)

// Mention is the letter grade derived from the overall score.
type Mention string

const (
	MentionA Mention = "A"
	MentionB Mention = "B"
	MentionC Mention = "C"
	MentionD Mention = "D"
	MentionE Mention = "E"
)

// Label returns the human readable mention printed on certificates.
func (m Mention) Label() string {
	switch m {
	case MentionA:
		return "Excellent"
	case MentionB:
		return "Very Good"
	case MentionC:
		return "Good"
	case MentionD:
		return "Pass"
	case MentionE:
		return "Insufficient"
	default:
		return ""
	}
}

// Valid reports whether m is one of the five mentions.
func (m Mention) Valid() bool {
	return m.Label() != ""
}

var (
	// MaxScore is the upper bound of the normalised scale.
	MaxScore = decimal.NewFromInt(20)

	thresholdA = decimal.NewFromInt(16)
	thresholdB = decimal.NewFromInt(14)
	thresholdC = decimal.NewFromInt(12)
	thresholdD = decimal.NewFromInt(10)
)

// Criteria holds the five components already normalised to the 0–20 scale.
type Criteria struct {
	Technical     decimal.Decimal `json:"technical"`
	Interpersonal decimal.Decimal `json:"interpersonal"`
	Attendance    decimal.Decimal `json:"attendance"`
	Initiative    decimal.Decimal `json:"initiative"`
	Report        decimal.Decimal `json:"report_quality"`
}

func (c Criteria) components() []namedValue {
	return []namedValue{
		{"technical", c.Technical},
		{"interpersonal", c.Interpersonal},
		{"attendance", c.Attendance},
		{"initiative", c.Initiative},
		{"report_quality", c.Report},
	}
}

type namedValue struct {
	name  string
	value decimal.Decimal
}

// Result is the outcome of ComputeMention.
type Result struct {
	OverallScore decimal.Decimal `json:"overall_score"`
	Mention      Mention         `json:"mention"`
}

// Engine applies a validated weight set.
type Engine struct {
	weights Weights
}

// NewEngine validates weights once; callers treat an error as fatal configuration.
func NewEngine(weights Weights) (*Engine, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Engine{weights: weights}, nil
}

// MustEngine panics when weights are invalid.
func MustEngine(weights Weights) *Engine {
	engine, err := NewEngine(weights)
	if err != nil {
		panic(err)
	}
	return engine
}

// Weights returns the weight set in use.
func (e *Engine) Weights() Weights {
	return e.weights
}

// ComputeMention returns the weighted score rounded half-up to two decimals and
// its mention. Components outside [0,20] are rejected, never clamped.
func (e *Engine) ComputeMention(c Criteria) (Result, error) {
	if err := ValidateCriteria(c); err != nil {
		return Result{}, err
	}
	sum := c.Technical.Mul(e.weights.Technical).
		Add(c.Interpersonal.Mul(e.weights.Interpersonal)).
		Add(c.Attendance.Mul(e.weights.Attendance)).
		Add(c.Initiative.Mul(e.weights.Initiative)).
		Add(c.Report.Mul(e.weights.Report))
	score := RoundHalfUp(sum)
	return Result{OverallScore: score, Mention: MentionFor(score)}, nil
}

// ValidateCriteria rejects any component outside [0,20].
func ValidateCriteria(c Criteria) error {
	for _, comp := range c.components() {
		if comp.value.IsNegative() || comp.value.GreaterThan(MaxScore) {
			return appErrors.Clonef(appErrors.ErrOutOfRange, "%s score %s outside [0,20]", comp.name, comp.value.String())
		}
	}
	return nil
}

// RoundHalfUp rounds a non-negative score to two decimals, ties going up.
func RoundHalfUp(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// MentionFor maps a rounded score to its mention. Thresholds are inclusive lower bounds.
func MentionFor(score decimal.Decimal) Mention {
	switch {
	case score.GreaterThanOrEqual(thresholdA):
		return MentionA
	case score.GreaterThanOrEqual(thresholdB):
		return MentionB
	case score.GreaterThanOrEqual(thresholdC):
		return MentionC
	case score.GreaterThanOrEqual(thresholdD):
		return MentionD
	default:
		return MentionE
	}
}

// Normalize converts a raw sub-score expressed on [1, scale] to the 0–20 scale.
func Normalize(raw decimal.Decimal, scale int) (decimal.Decimal, error) {
	if scale <= 0 {
		return decimal.Zero, appErrors.Clonef(appErrors.ErrValidation, "scale %d must be positive", scale)
	}
	scaleDec := decimal.NewFromInt(int64(scale))
	if raw.LessThan(decimal.NewFromInt(1)) || raw.GreaterThan(scaleDec) {
		return decimal.Zero, appErrors.Clonef(appErrors.ErrOutOfRange, "score %s outside [1,%d]", raw.String(), scale)
	}
	if scale == 20 {
		return raw, nil
	}
	return raw.Mul(MaxScore).Div(scaleDec), nil
}

// Average returns the component-wise mean of the given criteria.
func Average(criteria []Criteria) (Criteria, error) {
	if len(criteria) == 0 {
		return Criteria{}, appErrors.Clone(appErrors.ErrValidation, "no criteria to aggregate")
	}
	var out Criteria
	for _, c := range criteria {
		out.Technical = out.Technical.Add(c.Technical)
		out.Interpersonal = out.Interpersonal.Add(c.Interpersonal)
		out.Attendance = out.Attendance.Add(c.Attendance)
		out.Initiative = out.Initiative.Add(c.Initiative)
		out.Report = out.Report.Add(c.Report)
	}
	n := decimal.NewFromInt(int64(len(criteria)))
	out.Technical = out.Technical.Div(n)
	out.Interpersonal = out.Interpersonal.Div(n)
	out.Attendance = out.Attendance.Div(n)
	out.Initiative = out.Initiative.Div(n)
	out.Report = out.Report.Div(n)
	return out, nil
}

// String renders the criteria for logs.
func (c Criteria) String() string {
	return fmt.Sprintf("technical=%s interpersonal=%s attendance=%s initiative=%s report=%s",
		c.Technical, c.Interpersonal, c.Attendance, c.Initiative, c.Report)
}
