package handlers

import (
	"net/http"

	"github.com/Dosada05/talent-vote/middleware"
	"github.com/Dosada05/talent-vote/services"
)

type NavigationHandler struct {
	navigationService services.NavigationService
}

func NewNavigationHandler(ns services.NavigationService) *NavigationHandler {
	return &NavigationHandler{navigationService: ns}
}

// GetNavigation godoc
// @Summary Пункты меню для роли текущего пользователя
// @Description Без токена пользователь считается голосующим.
// @Tags navigation
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Router /api/navigation [get]
func (h *NavigationHandler) GetNavigation(w http.ResponseWriter, r *http.Request) {
	role := middleware.RoleOrAnonymous(r.Context())

	response := jsonResponse{
		"role":         role,
		"capabilities": h.navigationService.Capabilities(role),
		"items":        h.navigationService.Menu(role),
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
