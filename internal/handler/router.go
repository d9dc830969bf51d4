package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/internship-lifecycle-api/internal/middleware"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
)

// Handlers groups every lifecycle handler mounted under the API prefix.
type Handlers struct {
	Applications *ApplicationHandler
	Internships  *InternshipHandler
	Evaluations  *EvaluationHandler
	Reports      *ReportHandler
	Certificates *CertificateHandler
	Events       *EventHandler
	Sagas        *SagaHandler
}

// RouteOptions carries the cross-cutting pieces the routes need.
type RouteOptions struct {
	Tokens middleware.TokenValidator
	// VerifyLimit throttles the public verification lookup. Nil disables it.
	VerifyLimit gin.HandlerFunc
	AuditLogger *zap.Logger
}

// RegisterRoutes mounts the lifecycle API on api. Role gates here are coarse;
// ownership and assignment checks happen in the services.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, opts RouteOptions) {
	audit := func(action string) gin.HandlerFunc { return middleware.Audit(opts.AuditLogger, action) }

	public := api.Group("")
	verify := []gin.HandlerFunc{}
	if opts.VerifyLimit != nil {
		verify = append(verify, opts.VerifyLimit)
	}
	public.GET("/verify/:code", append(verify, h.Certificates.Verify)...)
	public.GET("/certificates/download", h.Certificates.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(opts.Tokens))

	students := middleware.RequireRoles(models.RoleStudent)
	applicationMovers := middleware.RequireRoles(models.RoleEnterpriseReviewer, models.RoleUniversityReviewer, models.RoleStudent)
	supervisorAssigners := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator,
		models.RoleEnterpriseReviewer, models.RoleUniversityReviewer)
	internshipMovers := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator, models.RoleSupervisor,
		models.RoleEnterpriseReviewer, models.RoleUniversityReviewer)
	attendanceWriters := middleware.RequireRoles(models.RoleStudent, models.RoleSupervisor)
	evaluators := middleware.RequireRoles(models.RoleEnterpriseReviewer, models.RoleUniversityReviewer, models.RoleSupervisor)
	reportReviewers := middleware.RequireRoles(models.RoleSupervisor, models.RoleUniversityReviewer)
	admins := middleware.RequireRoles(models.RoleAdmin)

	applications := secured.Group("/applications")
	applications.POST("", students, audit("application.submit"), h.Applications.Submit)
	applications.GET("", h.Applications.List)
	applications.GET("/:id", h.Applications.Get)
	applications.POST("/:id/transitions", applicationMovers, audit("application.transition"), h.Applications.Transition)

	internships := secured.Group("/internships")
	internships.GET("", h.Internships.List)
	internships.GET("/:id", h.Internships.Get)
	internships.POST("/:id/supervisor", supervisorAssigners, audit("internship.assign_supervisor"), h.Internships.AssignSupervisor)
	internships.POST("/:id/transitions", internshipMovers, audit("internship.transition"), h.Internships.Transition)
	internships.POST("/:id/attendance", attendanceWriters, audit("internship.attendance"), h.Internships.RecordAttendance)
	internships.GET("/:id/attendance", h.Internships.ListAttendance)
	internships.POST("/:id/activities", students, audit("internship.activity"), h.Internships.LogActivity)
	internships.GET("/:id/activities", h.Internships.ListActivities)
	internships.POST("/:id/evaluations", evaluators, audit("evaluation.submit"), h.Evaluations.Submit)
	internships.GET("/:id/evaluations", h.Evaluations.List)
	internships.POST("/:id/reports", students, audit("report.upload"), h.Reports.Upload)
	internships.GET("/:id/reports", h.Reports.List)
	internships.POST("/:id/certificate", middleware.Operators(), audit("certificate.issue"), h.Certificates.Issue)
	internships.GET("/:id/certificate", h.Certificates.Get)

	reports := secured.Group("/reports")
	reports.POST("/:id/review", reportReviewers, audit("report.review"), h.Reports.Review)
	reports.GET("/:id/file", h.Reports.Download)

	events := secured.Group("/events", middleware.Operators())
	events.GET("", h.Events.List)
	events.GET("/export", audit("events.export"), h.Events.Export)
	events.GET("/:entity_type/:entity_id", h.Events.History)

	sagas := secured.Group("/sagas", admins)
	sagas.GET("", h.Sagas.List)
	sagas.POST("/:id/retry", audit("saga.retry"), h.Sagas.Retry)
}
