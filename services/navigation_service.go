package services

import (
	"github.com/Dosada05/talent-vote/models"
)

// Статическое соответствие роль → набор возможностей.
var roleCapabilities = map[models.UserRole][]models.Capability{
	models.RoleVoter: {
		models.CapabilityViewEvents,
		models.CapabilityVote,
	},
	models.RoleOrganizer: {
		models.CapabilityViewEvents,
		models.CapabilityVote,
		models.CapabilityViewDashboard,
		models.CapabilityManageEvents,
		models.CapabilityViewPayments,
	},
	models.RoleAdmin: {
		models.CapabilityViewEvents,
		models.CapabilityVote,
		models.CapabilityViewDashboard,
		models.CapabilityManageEvents,
		models.CapabilityViewPayments,
		models.CapabilityManageUsers,
		models.CapabilityViewGatewayLogs,
	},
}

// Пункты меню в порядке отображения.
var navigationItems = []models.NavigationItem{
	{Key: "events", Label: "Événements", Path: "/events", Capability: models.CapabilityViewEvents},
	{Key: "vote", Label: "Voter", Path: "/vote", Capability: models.CapabilityVote},
	{Key: "dashboard", Label: "Tableau de bord", Path: "/dashboard", Capability: models.CapabilityViewDashboard},
	{Key: "manage-events", Label: "Gérer les événements", Path: "/dashboard/events", Capability: models.CapabilityManageEvents},
	{Key: "payments", Label: "Paiements", Path: "/dashboard/payments", Capability: models.CapabilityViewPayments},
	{Key: "users", Label: "Utilisateurs", Path: "/dashboard/users", Capability: models.CapabilityManageUsers},
	{Key: "gateway-events", Label: "Journal des paiements", Path: "/dashboard/gateway-events", Capability: models.CapabilityViewGatewayLogs},
}

type NavigationService interface {
	Capabilities(role models.UserRole) []models.Capability
	Can(role models.UserRole, capability models.Capability) bool
	Menu(role models.UserRole) []models.NavigationItem
}

type navigationService struct {
	grants map[models.UserRole]map[models.Capability]struct{}
}

func NewNavigationService() NavigationService {
	grants := make(map[models.UserRole]map[models.Capability]struct{}, len(roleCapabilities))
	for role, caps := range roleCapabilities {
		set := make(map[models.Capability]struct{}, len(caps))
		for _, c := range caps {
			set[c] = struct{}{}
		}
		grants[role] = set
	}
	return &navigationService{grants: grants}
}

// normalizeRole: неизвестная или пустая роль считается голосующим.
func normalizeRole(role models.UserRole) models.UserRole {
	if _, ok := roleCapabilities[role]; ok {
		return role
	}
	return models.RoleVoter
}

func (s *navigationService) Capabilities(role models.UserRole) []models.Capability {
	caps := roleCapabilities[normalizeRole(role)]
	out := make([]models.Capability, len(caps))
	copy(out, caps)
	return out
}

func (s *navigationService) Can(role models.UserRole, capability models.Capability) bool {
	_, ok := s.grants[normalizeRole(role)][capability]
	return ok
}

func (s *navigationService) Menu(role models.UserRole) []models.NavigationItem {
	items := make([]models.NavigationItem, 0, len(navigationItems))
	for _, item := range navigationItems {
		if s.Can(role, item.Capability) {
			items = append(items, item)
		}
	}
	return items
}
