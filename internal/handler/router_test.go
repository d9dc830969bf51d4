package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/internship-lifecycle-api/internal/dto"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
)

// roleTokens accepts "role:<ROLE>" bearer tokens.
type roleTokens struct{}

func (roleTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	const prefix = "role:"
	if len(token) <= len(prefix) || token[:len(prefix)] != prefix {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return &models.JWTClaims{UserID: "user-1", Role: models.UserRole(token[len(prefix):])}, nil
}

func buildTestRouter(limit gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := Handlers{
		Applications: NewApplicationHandler(&applicationServiceStub{app: &models.Application{ID: "app-1"}}),
		Internships:  NewInternshipHandler(&internshipServiceStub{internship: &models.Internship{ID: "int-1"}, detail: &dto.InternshipDetail{}}),
		Evaluations:  NewEvaluationHandler(&evaluationServiceStub{}),
		Reports:      NewReportHandler(&reportServiceStub{report: &models.InternshipReport{ID: "rep-1"}}),
		Certificates: NewCertificateHandler(&certificateServiceStub{
			cert:   &models.Certificate{ID: "cert-1"},
			verify: &models.CertificateVerification{Valid: true},
		}),
		Events: NewEventHandler(&eventFeedStub{page: &dto.EventPage{}}),
		Sagas:  NewSagaHandler(&sagaConsoleStub{}),
	}
	RegisterRoutes(router.Group("/api/v1"), handlers, RouteOptions{Tokens: roleTokens{}, VerifyLimit: limit, AuditLogger: zap.NewNop()})
	return router
}

func performRequest(router *gin.Engine, method, path string, role models.UserRole, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set("Authorization", "Bearer role:"+string(role))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouterRoleGates(t *testing.T) {
	router := buildTestRouter(nil)
	cases := []struct {
		name   string
		method string
		path   string
		role   models.UserRole
		body   string
		status int
	}{
		{"verify is public", http.MethodGet, "/api/v1/verify/abc", "", "", http.StatusOK},
		{"listing needs a token", http.MethodGet, "/api/v1/applications", "", "", http.StatusUnauthorized},
		{"student applies", http.MethodPost, "/api/v1/applications", models.RoleStudent, `{"offer_id":"offer-1"}`, http.StatusCreated},
		{"reviewer cannot apply", http.MethodPost, "/api/v1/applications", models.RoleEnterpriseReviewer, `{"offer_id":"offer-1"}`, http.StatusForbidden},
		{"supervisor cannot move applications", http.MethodPost, "/api/v1/applications/app-1/transitions", models.RoleSupervisor, `{"status":"UNDER_REVIEW"}`, http.StatusForbidden},
		{"reviewer moves applications", http.MethodPost, "/api/v1/applications/app-1/transitions", models.RoleUniversityReviewer, `{"status":"UNDER_REVIEW"}`, http.StatusOK},
		{"student cannot move internships", http.MethodPost, "/api/v1/internships/int-1/transitions", models.RoleStudent, `{"status":"ONGOING"}`, http.StatusForbidden},
		{"supervisor moves internships", http.MethodPost, "/api/v1/internships/int-1/transitions", models.RoleSupervisor, `{"status":"ONGOING"}`, http.StatusOK},
		{"student cannot issue certificates", http.MethodPost, "/api/v1/internships/int-1/certificate", models.RoleStudent, "", http.StatusForbidden},
		{"coordinator issues certificates", http.MethodPost, "/api/v1/internships/int-1/certificate", models.RoleCoordinator, "", http.StatusCreated},
		{"enterprise reviewer cannot review reports", http.MethodPost, "/api/v1/reports/rep-1/review", models.RoleEnterpriseReviewer, `{"score":"15"}`, http.StatusForbidden},
		{"feed is for operators", http.MethodGet, "/api/v1/events", models.RoleSupervisor, "", http.StatusForbidden},
		{"coordinator reads the feed", http.MethodGet, "/api/v1/events", models.RoleCoordinator, "", http.StatusOK},
		{"coordinator cannot list sagas", http.MethodGet, "/api/v1/sagas", models.RoleCoordinator, "", http.StatusForbidden},
		{"admin lists sagas", http.MethodGet, "/api/v1/sagas", models.RoleAdmin, "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := performRequest(router, tc.method, tc.path, tc.role, tc.body)
			require.Equal(t, tc.status, resp.Code, resp.Body.String())
		})
	}
}

func TestRouterThrottlesVerification(t *testing.T) {
	calls := 0
	limit := func(c *gin.Context) {
		calls++
		if calls > 1 {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
	router := buildTestRouter(limit)

	assert.Equal(t, http.StatusOK, performRequest(router, http.MethodGet, "/api/v1/verify/abc", "", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, performRequest(router, http.MethodGet, "/api/v1/verify/abc", "", "").Code)
	assert.Equal(t, http.StatusOK, performRequest(router, http.MethodGet, "/api/v1/applications/app-1", models.RoleStudent, "").Code)
}
