package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EvaluatorType tells which side of the internship authored an evaluation.
type EvaluatorType string

const (
	EvaluatorEnterprise EvaluatorType = "ENTERPRISE"
	EvaluatorUniversity EvaluatorType = "UNIVERSITY"
)

// Valid reports whether the evaluator type is supported.
func (t EvaluatorType) Valid() bool {
	return t == EvaluatorEnterprise || t == EvaluatorUniversity
}

// Supported evaluation scales.
const (
	EvaluationScale10 = 10
	EvaluationScale20 = 20
)

// Evaluation is immutable once stored; corrections are new evaluations.
type Evaluation struct {
	ID            string          `db:"id" json:"id"`
	InternshipID  string          `db:"internship_id" json:"internship_id"`
	EvaluatorID   string          `db:"evaluator_id" json:"evaluator_id"`
	EvaluatorType EvaluatorType   `db:"evaluator_type" json:"evaluator_type"`
	Period        string          `db:"period" json:"period"`
	Scale         int             `db:"scale" json:"scale"`
	Technical     decimal.Decimal `db:"technical" json:"technical"`
	Interpersonal decimal.Decimal `db:"interpersonal" json:"interpersonal"`
	Attendance    decimal.Decimal `db:"attendance" json:"attendance"`
	Initiative    decimal.Decimal `db:"initiative" json:"initiative"`
	ReportQuality decimal.Decimal `db:"report_quality" json:"report_quality"`
	Feedback      string          `db:"feedback" json:"feedback"`
	SubmittedAt   time.Time       `db:"submitted_at" json:"submitted_at"`
}
