package models

import "time"

// InternshipStatus is the closed set of internship states.
type InternshipStatus string

const (
	InternshipPending    InternshipStatus = "PENDING"
	InternshipOngoing    InternshipStatus = "ONGOING"
	InternshipSuspended  InternshipStatus = "SUSPENDED"
	InternshipCompleted  InternshipStatus = "COMPLETED"
	InternshipTerminated InternshipStatus = "TERMINATED"
)

var internshipTransitions = map[InternshipStatus][]InternshipStatus{
	InternshipPending:   {InternshipOngoing, InternshipTerminated},
	InternshipOngoing:   {InternshipSuspended, InternshipCompleted, InternshipTerminated},
	InternshipSuspended: {InternshipOngoing, InternshipTerminated},
}

// Valid reports whether s is a known status.
func (s InternshipStatus) Valid() bool {
	switch s {
	case InternshipPending, InternshipOngoing, InternshipSuspended, InternshipCompleted, InternshipTerminated:
		return true
	}
	return false
}

// Terminal reports COMPLETED and TERMINATED.
func (s InternshipStatus) Terminal() bool {
	return s.Valid() && len(internshipTransitions[s]) == 0
}

// CanTransitionTo is the allow-list for the internship graph.
func (s InternshipStatus) CanTransitionTo(target InternshipStatus) bool {
	for _, next := range internshipTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Internship is the engagement realised from exactly one accepted application.
type Internship struct {
	ID                   string           `db:"id" json:"id"`
	ApplicationID        string           `db:"application_id" json:"application_id"`
	StudentID            string           `db:"student_id" json:"student_id"`
	EnterpriseID         string           `db:"enterprise_id" json:"enterprise_id"`
	OfferID              string           `db:"offer_id" json:"offer_id"`
	UniversityID         string           `db:"university_id" json:"university_id"`
	SupervisorID         *string          `db:"supervisor_id" json:"supervisor_id,omitempty"`
	AcademicSupervisorID *string          `db:"academic_supervisor_id" json:"academic_supervisor_id,omitempty"`
	StartDate            time.Time        `db:"start_date" json:"start_date"`
	EndDate              time.Time        `db:"end_date" json:"end_date"`
	ActualEndDate        *time.Time       `db:"actual_end_date" json:"actual_end_date,omitempty"`
	Status               InternshipStatus `db:"status" json:"status"`
	TerminationReason    *string          `db:"termination_reason" json:"termination_reason,omitempty"`
	EarlyCompletion      bool             `db:"early_completion" json:"early_completion"`
	Version              int64            `db:"version" json:"version"`
	CreatedAt            time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time        `db:"updated_at" json:"updated_at"`
}

// Progress returns the elapsed share of the scheduled period, 0–100.
func (i *Internship) Progress(now time.Time) int {
	if i == nil || !i.EndDate.After(i.StartDate) {
		return 0
	}
	if i.Status == InternshipCompleted {
		return 100
	}
	if now.Before(i.StartDate) {
		return 0
	}
	if !now.Before(i.EndDate) {
		return 100
	}
	total := i.EndDate.Sub(i.StartDate)
	elapsed := now.Sub(i.StartDate)
	return int(elapsed * 100 / total)
}

// SupervisorKind distinguishes company and academic supervisors.
type SupervisorKind string

const (
	SupervisorCompany  SupervisorKind = "COMPANY"
	SupervisorAcademic SupervisorKind = "ACADEMIC"
)

// InternshipFilter narrows internship listings.
type InternshipFilter struct {
	StudentID    string
	EnterpriseID string
	SupervisorID string
	Status       []InternshipStatus
	Limit        int
	Offset       int
}
