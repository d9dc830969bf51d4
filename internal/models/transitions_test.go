package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplicationGraph(t *testing.T) {
	assert.True(t, ApplicationSubmitted.CanTransitionTo(ApplicationUnderReview))
	assert.True(t, ApplicationInterviewScheduled.CanTransitionTo(ApplicationAccepted))
	assert.True(t, ApplicationShortlisted.CanTransitionTo(ApplicationWithdrawn))
	assert.False(t, ApplicationSubmitted.CanTransitionTo(ApplicationAccepted))
	assert.False(t, ApplicationAccepted.CanTransitionTo(ApplicationWithdrawn))
	assert.False(t, ApplicationRejected.CanTransitionTo(ApplicationUnderReview))

	for _, s := range []ApplicationStatus{ApplicationAccepted, ApplicationRejected, ApplicationWithdrawn} {
		assert.True(t, s.Terminal(), s)
		assert.Empty(t, s.NextStatuses())
	}
	assert.False(t, ApplicationSubmitted.Terminal())
	assert.False(t, ApplicationStatus("ARCHIVED").Valid())
}

func TestInternshipGraph(t *testing.T) {
	assert.True(t, InternshipPending.CanTransitionTo(InternshipOngoing))
	assert.True(t, InternshipOngoing.CanTransitionTo(InternshipSuspended))
	assert.True(t, InternshipSuspended.CanTransitionTo(InternshipOngoing))
	assert.True(t, InternshipSuspended.CanTransitionTo(InternshipTerminated))
	assert.False(t, InternshipPending.CanTransitionTo(InternshipCompleted))
	assert.False(t, InternshipSuspended.CanTransitionTo(InternshipCompleted))
	assert.False(t, InternshipTerminated.CanTransitionTo(InternshipOngoing))
	assert.True(t, InternshipCompleted.Terminal())
	assert.True(t, InternshipTerminated.Terminal())
}

func TestInternshipProgress(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := &Internship{StartDate: start, EndDate: start.AddDate(0, 0, 100), Status: InternshipOngoing}
	assert.Equal(t, 0, in.Progress(start.AddDate(0, 0, -3)))
	assert.Equal(t, 25, in.Progress(start.AddDate(0, 0, 25)))
	assert.Equal(t, 100, in.Progress(start.AddDate(0, 0, 150)))
	in.Status = InternshipCompleted
	assert.Equal(t, 100, in.Progress(start))
}

func TestAttendanceSummaryRate(t *testing.T) {
	s := AttendanceSummary{Present: 7, Late: 1, Absent: 1, Excused: 1}
	assert.Equal(t, 10, s.Total())
	assert.InDelta(t, 0.8, s.Rate(), 1e-9)
	assert.Zero(t, AttendanceSummary{}.Rate())
}
