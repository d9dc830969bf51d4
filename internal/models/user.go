package models

// UserRole represents the roles carried in identity-provider tokens.
type UserRole string

const (
	RoleAdmin              UserRole = "ADMIN"
	RoleCoordinator        UserRole = "COORDINATOR"
	RoleEnterpriseReviewer UserRole = "ENTERPRISE_REVIEWER"
	RoleUniversityReviewer UserRole = "UNIVERSITY_REVIEWER"
	RoleSupervisor         UserRole = "SUPERVISOR"
	RoleStudent            UserRole = "STUDENT"
	// RoleSystem is used by the coordinator for transitions it drives itself.
	RoleSystem UserRole = "SYSTEM"
)

// IsReviewer reports enterprise or university reviewer roles.
func (r UserRole) IsReviewer() bool {
	return r == RoleEnterpriseReviewer || r == RoleUniversityReviewer
}

// IsOperator reports roles allowed to override lifecycle rules.
func (r UserRole) IsOperator() bool {
	return r == RoleAdmin || r == RoleCoordinator
}

// Actor identifies who requested an operation.
type Actor struct {
	ID   string   `json:"id"`
	Role UserRole `json:"role"`
}

// SystemActor is the identity recorded for coordinator-driven writes.
var SystemActor = Actor{ID: "lifecycle-coordinator", Role: RoleSystem}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleCoordinator, RoleEnterpriseReviewer, RoleUniversityReviewer, RoleSupervisor, RoleStudent, RoleSystem:
		return true
	}
	return false
}
