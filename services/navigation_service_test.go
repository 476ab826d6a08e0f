package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Dosada05/talent-vote/models"
)

func menuKeys(items []models.NavigationItem) []string {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.Key)
	}
	return keys
}

func TestNavigationService_Menu(t *testing.T) {
	svc := NewNavigationService()

	assert.Equal(t, []string{"events", "vote"}, menuKeys(svc.Menu(models.RoleVoter)))
	assert.Equal(t, []string{"events", "vote", "dashboard", "manage-events", "payments"}, menuKeys(svc.Menu(models.RoleOrganizer)))
	assert.Len(t, svc.Menu(models.RoleAdmin), len(navigationItems))
	assert.Equal(t, menuKeys(svc.Menu(models.RoleVoter)), menuKeys(svc.Menu("")), "anonymous callers see the voter menu")
	assert.Equal(t, menuKeys(svc.Menu(models.RoleVoter)), menuKeys(svc.Menu("superuser")))
}

func TestNavigationService_Can(t *testing.T) {
	svc := NewNavigationService()

	assert.True(t, svc.Can(models.RoleAdmin, models.CapabilityViewGatewayLogs))
	assert.False(t, svc.Can(models.RoleOrganizer, models.CapabilityViewGatewayLogs))
	assert.False(t, svc.Can(models.RoleVoter, models.CapabilityViewDashboard))
	assert.True(t, svc.Can(models.RoleVoter, models.CapabilityVote))
}

func TestNavigationService_CapabilitiesAreCopied(t *testing.T) {
	svc := NewNavigationService()
	caps := svc.Capabilities(models.RoleVoter)
	caps[0] = models.CapabilityManageUsers
	assert.False(t, svc.Can(models.RoleVoter, models.CapabilityManageUsers))
}
