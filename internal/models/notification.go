package models

import "time"

// NotificationType is the event type relayed to the notification service.
type NotificationType string

const (
	NotificationApplicationAccepted  NotificationType = "APPLICATION_ACCEPTED"
	NotificationInternshipCreated    NotificationType = "INTERNSHIP_CREATED"
	NotificationInternshipStarted    NotificationType = "INTERNSHIP_STARTED"
	NotificationSupervisorAssigned   NotificationType = "SUPERVISOR_ASSIGNED"
	NotificationReportSubmitted      NotificationType = "REPORT_SUBMITTED"
	NotificationEvaluationSubmitted  NotificationType = "EVALUATION_SUBMITTED"
	NotificationInternshipCompleted  NotificationType = "INTERNSHIP_COMPLETED"
	NotificationCertificateIssued    NotificationType = "CERTIFICATE_ISSUED"
	NotificationInternshipTerminated NotificationType = "INTERNSHIP_TERMINATED"
)

// Notification is the payload enqueued for delivery. ID is deterministic for
// coordinator-driven notifications so consumers can drop duplicates.
type Notification struct {
	ID         string            `json:"id"`
	Type       NotificationType  `json:"type"`
	EntityType EntityType        `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Event      *LifecycleEvent   `json:"event,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
