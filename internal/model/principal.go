package model

import "github.com/google/uuid"

type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleDispatcher  Role = "DISPATCHER"
	RoleViewer      Role = "VIEWER"
	RoleIntegration Role = "INTEGRATION"
)

type Principal struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func (p Principal) IsDispatcher() bool {
	return p.Role == RoleDispatcher
}

func (p Principal) IsIntegration() bool {
	return p.Role == RoleIntegration
}

// CanManageTrips covers admission, status transitions and shipment updates.
func (p Principal) CanManageTrips() bool {
	return p.IsAdmin() || p.IsDispatcher()
}

func (p Principal) CanRead() bool {
	switch p.Role {
	case RoleAdmin, RoleDispatcher, RoleViewer, RoleIntegration:
		return true
	default:
		return false
	}
}

func (p Principal) CanResolveConsent() bool {
	return p.IsAdmin() || p.IsIntegration()
}
