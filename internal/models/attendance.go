package models

import "time"

// AttendanceStatus enumerates daily attendance values.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
	AttendanceLate    AttendanceStatus = "LATE"
	AttendanceExcused AttendanceStatus = "EXCUSED"
)

// Valid reports whether the attendance status is supported.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return true
	}
	return false
}

// AttendanceRecord is one day of attendance. At most one per (internship, date).
type AttendanceRecord struct {
	ID           string           `db:"id" json:"id"`
	InternshipID string           `db:"internship_id" json:"internship_id"`
	Date         time.Time        `db:"date" json:"date"`
	Status       AttendanceStatus `db:"status" json:"status"`
	Notes        *string          `db:"notes" json:"notes,omitempty"`
	RecordedBy   string           `db:"recorded_by" json:"recorded_by"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}

// AttendanceSummary counts attendance per status.
type AttendanceSummary struct {
	Present int `db:"present" json:"present"`
	Absent  int `db:"absent" json:"absent"`
	Late    int `db:"late" json:"late"`
	Excused int `db:"excused" json:"excused"`
}

// Total returns the number of recorded days.
func (s AttendanceSummary) Total() int {
	return s.Present + s.Absent + s.Late + s.Excused
}

// Rate is the share of days attended (present or late). Zero when nothing is recorded.
func (s AttendanceSummary) Rate() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.Present+s.Late) / float64(s.Total())
}

// ActivityLog is an append-only journal entry.
type ActivityLog struct {
	ID           string    `db:"id" json:"id"`
	InternshipID string    `db:"internship_id" json:"internship_id"`
	Date         time.Time `db:"date" json:"date"`
	Description  string    `db:"description" json:"description"`
	Hours        float64   `db:"hours" json:"hours"`
	RecordedBy   string    `db:"recorded_by" json:"recorded_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
