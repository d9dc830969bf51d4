package models

import "time"

// SagaKind names a coordinated sequence.
type SagaKind string

const (
	SagaInternshipCreation SagaKind = "INTERNSHIP_CREATION"
	SagaCertification      SagaKind = "CERTIFICATION"
	SagaTerminationNotice  SagaKind = "TERMINATION_NOTICE"
)

// SagaStatus tracks a sequence run.
type SagaStatus string

const (
	SagaRunning SagaStatus = "RUNNING"
	SagaDone    SagaStatus = "DONE"
	SagaStalled SagaStatus = "STALLED"
)

// Saga steps, recorded as the last completed step.
const (
	SagaStepStarted     = "STARTED"
	SagaStepInternship  = "INTERNSHIP_CREATED"
	SagaStepCertificate = "CERTIFICATE_ISSUED"
	SagaStepNotified    = "NOTIFIED"
)

// SagaRun is the persisted state of one coordinated sequence, unique per (kind, idempotency key).
type SagaRun struct {
	ID             string     `db:"id" json:"id"`
	Kind           SagaKind   `db:"kind" json:"kind"`
	IdempotencyKey string     `db:"idempotency_key" json:"idempotency_key"`
	TriggerEventID string     `db:"trigger_event_id" json:"trigger_event_id"`
	Status         SagaStatus `db:"status" json:"status"`
	Step           string     `db:"step" json:"step"`
	Attempts       int        `db:"attempts" json:"attempts"`
	LastError      *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// SagaFilter narrows the operator listing.
type SagaFilter struct {
	Status []SagaStatus
	Kind   SagaKind
	Limit  int
	Offset int
}
