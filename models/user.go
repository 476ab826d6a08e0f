package models

type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleOrganizer UserRole = "organizer"
	RoleVoter     UserRole = "voter"
)

// Capability - тег возможности, по которому фильтруется навигация.
type Capability string

const (
	CapabilityVote            Capability = "votes.cast"
	CapabilityViewEvents      Capability = "events.view"
	CapabilityViewDashboard   Capability = "dashboard.view"
	CapabilityManageEvents    Capability = "events.manage"
	CapabilityViewPayments    Capability = "payments.view"
	CapabilityManageUsers     Capability = "users.manage"
	CapabilityViewGatewayLogs Capability = "gateway.logs"
)

type NavigationItem struct {
	Key        string     `json:"key"`
	Label      string     `json:"label"`
	Path       string     `json:"path"`
	Capability Capability `json:"-"`
}
