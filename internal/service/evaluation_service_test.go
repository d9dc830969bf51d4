package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/internal/scoring"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
)

func scores(technical, interpersonal, attendance, initiative, report string) dto.SubmitEvaluationRequest {
	return dto.SubmitEvaluationRequest{
		Period:        "midterm",
		Technical:     technical,
		Interpersonal: interpersonal,
		Attendance:    attendance,
		Initiative:    initiative,
		ReportQuality: report,
	}
}

func TestSubmitEvaluationRejectsOutOfRangeScores(t *testing.T) {
	h := newLifecycleHarness(t)
	internship := h.startInternship(t)

	tests := []struct {
		name    string
		req     dto.SubmitEvaluationRequest
		wantErr *appErrors.Error
	}{
		{name: "above scale", req: scores("21", "15", "13", "12", "14"), wantErr: appErrors.ErrOutOfRange},
		{name: "below one", req: scores("14", "0", "13", "12", "14"), wantErr: appErrors.ErrOutOfRange},
		{name: "above scale ten", req: func() dto.SubmitEvaluationRequest {
			r := scores("7", "7", "11", "7", "7")
			r.Scale = 10
			return r
		}(), wantErr: appErrors.ErrOutOfRange},
		{name: "not a number", req: scores("fourteen", "15", "13", "12", "14"), wantErr: appErrors.ErrValidation},
		{name: "unsupported scale", req: func() dto.SubmitEvaluationRequest {
			r := scores("14", "15", "13", "12", "14")
			r.Scale = 100
			return r
		}(), wantErr: appErrors.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.evaluations.Submit(context.Background(), internship.ID, tc.req, supervisorActor)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	evaluations, preview, err := h.evaluations.List(context.Background(), internship.ID, adminActor)
	require.NoError(t, err)
	assert.Empty(t, evaluations)
	assert.Equal(t, 0, preview.Evaluations)
	assert.Empty(t, preview.OverallScore)
}

func TestSubmitEvaluationOnTenPointScale(t *testing.T) {
	h := newLifecycleHarness(t)
	internship := h.startInternship(t)

	req := scores("7", "7.5", "6.5", "6", "7")
	req.Scale = 10
	evaluation, err := h.evaluations.Submit(context.Background(), internship.ID, req, supervisorActor)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluatorEnterprise, evaluation.EvaluatorType)
	assert.Equal(t, 10, evaluation.Scale)
	assert.True(t, decimal.RequireFromString("7.5").Equal(evaluation.Interpersonal))

	_, preview, err := h.evaluations.List(context.Background(), internship.ID, studentActor)
	require.NoError(t, err)
	assert.Equal(t, "13.75", preview.OverallScore)
	assert.Equal(t, string(scoring.MentionC), preview.Mention)
	assert.Equal(t, "Good", preview.MentionLabel)
	assert.Len(t, h.notifier.ofType(models.NotificationEvaluationSubmitted), 1)
}

func TestSubmitEvaluationAuthorization(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	_, pending := h.acceptApplication(t)

	_, err := h.evaluations.Submit(ctx, pending.ID, scores("14", "15", "13", "12", "14"), enterpriseActor)
	assert.ErrorIs(t, err, appErrors.ErrValidation, "pending internships cannot be evaluated")

	h.assignAndStart(t, pending.ID)

	_, err = h.evaluations.Submit(ctx, pending.ID, scores("14", "15", "13", "12", "14"), studentActor)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	stranger := models.Actor{ID: "supervisor-9", Role: models.RoleSupervisor}
	_, err = h.evaluations.Submit(ctx, pending.ID, scores("14", "15", "13", "12", "14"), stranger)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = h.evaluations.Submit(ctx, "missing", scores("14", "15", "13", "12", "14"), enterpriseActor)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, _, err = h.evaluations.List(ctx, pending.ID, otherStudent)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestSupervisorHoldingBothAssignmentsMustChooseType(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	internship := h.startInternship(t)
	_, err := h.internships.AssignSupervisor(ctx, internship.ID,
		dto.AssignSupervisorRequest{SupervisorID: supervisorActor.ID, Kind: models.SupervisorAcademic}, coordinator1)
	require.NoError(t, err)

	_, err = h.evaluations.Submit(ctx, internship.ID, scores("14", "15", "13", "12", "14"), supervisorActor)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req := scores("14", "15", "13", "12", "14")
	req.EvaluatorType = models.EvaluatorUniversity
	evaluation, err := h.evaluations.Submit(ctx, internship.ID, req, supervisorActor)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluatorUniversity, evaluation.EvaluatorType)
}

func TestPreviewAveragesLatestPerEvaluatorType(t *testing.T) {
	h := newLifecycleHarness(t)
	ctx := context.Background()
	internship := h.startInternship(t)

	h.evaluate(t, internship.ID, "5", "5", "5", "5", "5")
	h.clock.Advance(time.Hour)
	h.evaluate(t, internship.ID, "14", "15", "13", "12", "14")
	h.clock.Advance(time.Hour)
	_, err := h.evaluations.Submit(ctx, internship.ID, scores("16", "15", "13", "12", "14"), universityActor)
	require.NoError(t, err)

	evaluations, preview, err := h.evaluations.List(ctx, internship.ID, adminActor)
	require.NoError(t, err)
	assert.Len(t, evaluations, 3)
	assert.Equal(t, 3, preview.Evaluations)
	// technical averages to 15: 4.50 + 3.00 + 1.95 + 1.80 + 2.80
	assert.Equal(t, "14.05", preview.OverallScore)
	assert.Equal(t, string(scoring.MentionB), preview.Mention)
	assert.Equal(t, "Very Good", preview.MentionLabel)
}

func TestLatestPerEvaluatorType(t *testing.T) {
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	evaluations := []models.Evaluation{
		{ID: "e1", EvaluatorType: models.EvaluatorEnterprise, SubmittedAt: at},
		{ID: "e3", EvaluatorType: models.EvaluatorEnterprise, SubmittedAt: at},
		{ID: "e2", EvaluatorType: models.EvaluatorEnterprise, SubmittedAt: at.Add(-time.Hour)},
		{ID: "u1", EvaluatorType: models.EvaluatorUniversity, SubmittedAt: at.Add(-48 * time.Hour)},
	}

	latest := LatestPerEvaluatorType(evaluations)
	require.Len(t, latest, 2)
	assert.Equal(t, "e3", latest[0].ID, "ties on submission time go to the greater id")
	assert.Equal(t, "u1", latest[1].ID)

	assert.Empty(t, LatestPerEvaluatorType(nil))
	_, err := AggregateEvaluations(nil)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
