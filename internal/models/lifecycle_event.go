package models

import "time"

// EntityType names the entity a lifecycle event belongs to.
type EntityType string

const (
	EntityApplication EntityType = "APPLICATION"
	EntityInternship  EntityType = "INTERNSHIP"
	EntityCertificate EntityType = "CERTIFICATE"
)

// CertificateIssued is the status recorded on certificate events.
const CertificateIssued = "ISSUED"

// LifecycleEvent is an immutable record of one status transition. Sequence is
// strictly increasing per entity and orders the feed.
type LifecycleEvent struct {
	ID           string     `db:"id" json:"id"`
	EntityType   EntityType `db:"entity_type" json:"entity_type"`
	EntityID     string     `db:"entity_id" json:"entity_id"`
	Sequence     int64      `db:"sequence" json:"sequence"`
	OldStatus    string     `db:"old_status" json:"old_status"`
	NewStatus    string     `db:"new_status" json:"new_status"`
	ActorID      string     `db:"actor_id" json:"actor_id"`
	ActorRole    string     `db:"actor_role" json:"actor_role"`
	Reason       *string    `db:"reason" json:"reason,omitempty"`
	OccurredAt   time.Time  `db:"occurred_at" json:"occurred_at"`
	DispatchedAt *time.Time `db:"dispatched_at" json:"dispatched_at,omitempty"`
}

// EventFilter selects a slice of the feed.
type EventFilter struct {
	EntityType  EntityType
	EntityID    string
	AfterCursor time.Time
	AfterID     string
	Limit       int
}
