package dto

import (
	"time"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
)

// SubmitApplicationRequest is the payload a student sends to apply to an offer.
type SubmitApplicationRequest struct {
	OfferID      string `json:"offer_id" validate:"required"`
	EnterpriseID string `json:"enterprise_id" validate:"required"`
	UniversityID string `json:"university_id" validate:"required"`
	StartDate    string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate      string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Motivation   string `json:"motivation" validate:"omitempty,max=4000"`
}

// ApplicationTransitionRequest asks for an application status change.
type ApplicationTransitionRequest struct {
	Status          models.ApplicationStatus `json:"status" validate:"required"`
	ExpectedVersion int64                    `json:"expected_version" validate:"omitempty,min=1"`
	Reason          string                   `json:"reason" validate:"omitempty,max=1000"`
}

// ApplicationQuery filters application listings.
type ApplicationQuery struct {
	OfferID   string `form:"offer_id"`
	StudentID string `form:"student_id"`
	Status    string `form:"status"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// InternshipTransitionRequest asks for an internship status change.
type InternshipTransitionRequest struct {
	Status          models.InternshipStatus `json:"status" validate:"required"`
	ExpectedVersion int64                   `json:"expected_version" validate:"omitempty,min=1"`
	Reason          string                  `json:"reason" validate:"omitempty,max=1000"`
	// EarlyCompletion lets an operator complete before the scheduled end date.
	EarlyCompletion bool `json:"early_completion"`
	// OverrideAttendance lets an operator complete despite a low attendance rate.
	OverrideAttendance bool `json:"override_attendance"`
}

// AssignSupervisorRequest sets the company or academic supervisor.
type AssignSupervisorRequest struct {
	SupervisorID string                `json:"supervisor_id" validate:"required"`
	Kind         models.SupervisorKind `json:"kind" validate:"omitempty,oneof=COMPANY ACADEMIC"`
}

// InternshipQuery filters internship listings.
type InternshipQuery struct {
	StudentID    string `form:"student_id"`
	EnterpriseID string `form:"enterprise_id"`
	SupervisorID string `form:"supervisor_id"`
	Status       string `form:"status"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}

// InternshipDetail enriches an internship with derived progress and attendance.
type InternshipDetail struct {
	models.Internship
	Progress       int                      `json:"progress"`
	Attendance     models.AttendanceSummary `json:"attendance"`
	AttendanceRate float64                  `json:"attendance_rate"`
}

// RecordAttendanceRequest records one day of attendance.
type RecordAttendanceRequest struct {
	Date   string                  `json:"date" validate:"required,datetime=2006-01-02"`
	Status models.AttendanceStatus `json:"status" validate:"required,oneof=PRESENT ABSENT LATE EXCUSED"`
	Notes  string                  `json:"notes" validate:"omitempty,max=1000"`
}

// LogActivityRequest appends an activity journal entry.
type LogActivityRequest struct {
	Date        string  `json:"date" validate:"required,datetime=2006-01-02"`
	Description string  `json:"description" validate:"required,max=4000"`
	Hours       float64 `json:"hours" validate:"gte=0,lte=24"`
}

// SubmitEvaluationRequest carries raw sub-scores on the declared scale.
type SubmitEvaluationRequest struct {
	Period        string `json:"period" validate:"required,max=64"`
	Scale         int    `json:"scale" validate:"omitempty,oneof=10 20"`
	Technical     string `json:"technical" validate:"required,numeric"`
	Interpersonal string `json:"interpersonal" validate:"required,numeric"`
	Attendance    string `json:"attendance" validate:"required,numeric"`
	Initiative    string `json:"initiative" validate:"required,numeric"`
	ReportQuality string `json:"report_quality" validate:"required,numeric"`
	Feedback      string `json:"feedback" validate:"omitempty,max=4000"`
	// EvaluatorType is only read for supervisors holding both assignments.
	EvaluatorType models.EvaluatorType `json:"evaluator_type" validate:"omitempty,oneof=ENTERPRISE UNIVERSITY"`
}

// ScorePreview is the current aggregate for an internship.
type ScorePreview struct {
	Evaluations  int    `json:"evaluations"`
	OverallScore string `json:"overall_score,omitempty"`
	Mention      string `json:"mention,omitempty"`
	MentionLabel string `json:"mention_label,omitempty"`
}

// UploadReportRequest describes a multipart report upload.
type UploadReportRequest struct {
	Type        models.InternshipReportType `validate:"required,oneof=WEEKLY MONTHLY MIDTERM FINAL ACTIVITY"`
	Title       string                      `validate:"required,max=255"`
	FileName    string                      `validate:"required"`
	ContentType string
	Data        []byte
}

// ReviewReportRequest scores a submitted report on the 0–20 scale.
type ReviewReportRequest struct {
	Score    string `json:"score" validate:"required,numeric"`
	Feedback string `json:"feedback" validate:"omitempty,max=4000"`
}

// ReportDownload is a fetched report document.
type ReportDownload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// CertificateResponse is a certificate with its time-limited download link.
type CertificateResponse struct {
	models.Certificate
	MentionLabel string    `json:"mention_label"`
	DownloadURL  string    `json:"download_url"`
	ExpiresAt    time.Time `json:"download_expires_at"`
}

// CertificateDownload is the rendered certificate document.
type CertificateDownload struct {
	FileName string
	Data     []byte
}

// EventQuery pages through the lifecycle event feed.
type EventQuery struct {
	EntityType string `form:"entity_type"`
	EntityID   string `form:"entity_id"`
	Cursor     string `form:"cursor"`
	Limit      int    `form:"limit"`
	// Format selects the export rendering: csv (default) or pdf.
	Format string `form:"format"`
}

// EventPage is one page of the feed.
type EventPage struct {
	Events     []models.LifecycleEvent `json:"events"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

// SagaQuery filters the operator listing of coordinated sequences.
type SagaQuery struct {
	Status string `form:"status"`
	Kind   string `form:"kind"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}
