package models

import "time"

// ApplicationStatus is the closed set of application states.
type ApplicationStatus string

const (
	ApplicationSubmitted          ApplicationStatus = "SUBMITTED"
	ApplicationUnderReview        ApplicationStatus = "UNDER_REVIEW"
	ApplicationShortlisted        ApplicationStatus = "SHORTLISTED"
	ApplicationInterviewScheduled ApplicationStatus = "INTERVIEW_SCHEDULED"
	ApplicationAccepted           ApplicationStatus = "ACCEPTED"
	ApplicationRejected           ApplicationStatus = "REJECTED"
	ApplicationWithdrawn          ApplicationStatus = "WITHDRAWN"
)

var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationSubmitted:          {ApplicationUnderReview, ApplicationWithdrawn},
	ApplicationUnderReview:        {ApplicationShortlisted, ApplicationWithdrawn},
	ApplicationShortlisted:        {ApplicationInterviewScheduled, ApplicationWithdrawn},
	ApplicationInterviewScheduled: {ApplicationAccepted, ApplicationRejected, ApplicationWithdrawn},
}

// Valid reports whether s is a known status.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationSubmitted, ApplicationUnderReview, ApplicationShortlisted, ApplicationInterviewScheduled,
		ApplicationAccepted, ApplicationRejected, ApplicationWithdrawn:
		return true
	}
	return false
}

// Terminal reports ACCEPTED, REJECTED and WITHDRAWN.
func (s ApplicationStatus) Terminal() bool {
	return s.Valid() && len(applicationTransitions[s]) == 0
}

// CanTransitionTo is the allow-list for the application graph.
func (s ApplicationStatus) CanTransitionTo(target ApplicationStatus) bool {
	for _, next := range applicationTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// NextStatuses lists legal targets from s.
func (s ApplicationStatus) NextStatuses() []ApplicationStatus {
	return append([]ApplicationStatus(nil), applicationTransitions[s]...)
}

// Application is one (offer, student) candidacy.
type Application struct {
	ID              string            `db:"id" json:"id"`
	OfferID         string            `db:"offer_id" json:"offer_id"`
	StudentID       string            `db:"student_id" json:"student_id"`
	EnterpriseID    string            `db:"enterprise_id" json:"enterprise_id"`
	UniversityID    string            `db:"university_id" json:"university_id"`
	StartDate       time.Time         `db:"start_date" json:"start_date"`
	EndDate         time.Time         `db:"end_date" json:"end_date"`
	Motivation      string            `db:"motivation" json:"motivation,omitempty"`
	Status          ApplicationStatus `db:"status" json:"status"`
	Version         int64             `db:"version" json:"version"`
	ReviewerID      *string           `db:"reviewer_id" json:"reviewer_id,omitempty"`
	RejectionReason *string           `db:"rejection_reason" json:"rejection_reason,omitempty"`
	SubmittedAt     time.Time         `db:"submitted_at" json:"submitted_at"`
	ReviewedAt      *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// ApplicationFilter narrows application listings.
type ApplicationFilter struct {
	OfferID   string
	StudentID string
	Status    []ApplicationStatus
	Limit     int
	Offset    int
}
