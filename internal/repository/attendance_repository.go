package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
)

// AttendanceRepository stores one attendance record per internship per day.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Insert stores the record. A second submission for the same day is a no-op that
// returns the stored record with created=false.
func (r *AttendanceRepository) Insert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, bool, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_records (id, internship_id, date, status, notes, recorded_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (internship_id, date) DO NOTHING
RETURNING id, internship_id, date, status, notes, recorded_by, created_at`

	var stored models.AttendanceRecord
	err := r.db.GetContext(ctx, &stored, query, record.ID, record.InternshipID, record.Date, record.Status,
		record.Notes, record.RecordedBy, record.CreatedAt)
	if err == nil {
		return &stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert attendance: %w", err)
	}
	const existing = `SELECT id, internship_id, date, status, notes, recorded_by, created_at
FROM attendance_records WHERE internship_id = $1 AND date = $2`
	if err := r.db.GetContext(ctx, &stored, existing, record.InternshipID, record.Date); err != nil {
		return nil, false, fmt.Errorf("load existing attendance: %w", err)
	}
	return &stored, false, nil
}

// List returns attendance for an internship ordered by date.
func (r *AttendanceRepository) List(ctx context.Context, internshipID string) ([]models.AttendanceRecord, error) {
	const query = `SELECT id, internship_id, date, status, notes, recorded_by, created_at
FROM attendance_records WHERE internship_id = $1 ORDER BY date`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, internshipID); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return records, nil
}

// Summary counts attendance per status.
func (r *AttendanceRepository) Summary(ctx context.Context, internshipID string) (models.AttendanceSummary, error) {
	const query = `SELECT
    COUNT(*) FILTER (WHERE status = 'PRESENT') AS present,
    COUNT(*) FILTER (WHERE status = 'ABSENT') AS absent,
    COUNT(*) FILTER (WHERE status = 'LATE') AS late,
    COUNT(*) FILTER (WHERE status = 'EXCUSED') AS excused
FROM attendance_records WHERE internship_id = $1`
	var summary models.AttendanceSummary
	if err := r.db.GetContext(ctx, &summary, query, internshipID); err != nil {
		return models.AttendanceSummary{}, fmt.Errorf("summarise attendance: %w", err)
	}
	return summary, nil
}

// ActivityRepository stores the append-only activity journal.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create appends an activity entry.
func (r *ActivityRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_logs (id, internship_id, date, description, hours, recorded_by, created_at)
	VALUES (:id, :internship_id, :date, :description, :hours, :recorded_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

// List returns the activity journal in chronological order.
func (r *ActivityRepository) List(ctx context.Context, internshipID string) ([]models.ActivityLog, error) {
	const query = `SELECT id, internship_id, date, description, hours, recorded_by, created_at
FROM activity_logs WHERE internship_id = $1 ORDER BY date, created_at`
	var entries []models.ActivityLog
	if err := r.db.SelectContext(ctx, &entries, query, internshipID); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return entries, nil
}
