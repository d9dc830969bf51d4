package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InternshipReportType enumerates report kinds a student submits.
type InternshipReportType string

const (
	ReportWeekly   InternshipReportType = "WEEKLY"
	ReportMonthly  InternshipReportType = "MONTHLY"
	ReportMidterm  InternshipReportType = "MIDTERM"
	ReportFinal    InternshipReportType = "FINAL"
	ReportActivity InternshipReportType = "ACTIVITY"
)

// Valid reports whether t is supported.
func (t InternshipReportType) Valid() bool {
	switch t {
	case ReportWeekly, ReportMonthly, ReportMidterm, ReportFinal, ReportActivity:
		return true
	}
	return false
}

// InternshipReportStatus tracks review.
type InternshipReportStatus string

const (
	ReportSubmitted InternshipReportStatus = "SUBMITTED"
	ReportReviewed  InternshipReportStatus = "REVIEWED"
)

// InternshipReport is a document uploaded by the student and reviewed by a supervisor.
type InternshipReport struct {
	ID           string                 `db:"id" json:"id"`
	InternshipID string                 `db:"internship_id" json:"internship_id"`
	Type         InternshipReportType   `db:"type" json:"type"`
	Title        string                 `db:"title" json:"title"`
	DocumentPath string                 `db:"document_path" json:"-"`
	Checksum     string                 `db:"checksum" json:"checksum"`
	ContentType  string                 `db:"content_type" json:"content_type"`
	SizeBytes    int64                  `db:"size_bytes" json:"size_bytes"`
	Status       InternshipReportStatus `db:"status" json:"status"`
	Score        *decimal.Decimal       `db:"score" json:"score,omitempty"`
	Feedback     *string                `db:"feedback" json:"feedback,omitempty"`
	ReviewerID   *string                `db:"reviewer_id" json:"reviewer_id,omitempty"`
	SubmittedBy  string                 `db:"submitted_by" json:"submitted_by"`
	SubmittedAt  time.Time              `db:"submitted_at" json:"submitted_at"`
	ReviewedAt   *time.Time             `db:"reviewed_at" json:"reviewed_at,omitempty"`
}
