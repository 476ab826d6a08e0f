package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/talent-vote/middleware"
	"github.com/Dosada05/talent-vote/services"
)

type AdminHandler struct {
	reconciliationService services.ReconciliationService
	logger                *slog.Logger
}

func NewAdminHandler(rs services.ReconciliationService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{reconciliationService: rs, logger: logger}
}

// ListGatewayEvents godoc
// @Summary Журнал уведомлений платёжного шлюза
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Размер страницы (по умолчанию 50, максимум 200)"
// @Param offset query int false "Смещение"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /api/admin/gateway-events [get]
func (h *AdminHandler) ListGatewayEvents(w http.ResponseWriter, r *http.Request) {
	// Журнал содержит платёжные данные: каждый просмотр пишем в лог с автором.
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authenticated user is required")
		return
	}

	q := r.URL.Query()
	limit := toInt(q.Get("limit"), 50)
	offset := toInt(q.Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	events, err := h.reconciliationService.ListEvents(r.Context(), limit, offset)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "Admin listed gateway events",
		slog.String("user_id", userID),
		slog.Int("limit", limit),
		slog.Int("offset", offset),
		slog.Int("count", len(events)))

	response := jsonResponse{"events": events, "offset": offset}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
