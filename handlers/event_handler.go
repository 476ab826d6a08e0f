package handlers

import (
	"net/http"

	"github.com/Dosada05/talent-vote/services"
)

type EventHandler struct {
	eventService services.EventService
}

func NewEventHandler(es services.EventService) *EventHandler {
	return &EventHandler{
		eventService: es,
	}
}

// GetEvent godoc
// @Summary Дерево события с активной фазой
// @Tags events
// @Produce json
// @Param eventID path string true "ID события"
// @Success 200 {object} services.EventView
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/events/{eventID} [get]
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.eventService.GetEvent(r.Context(), eventID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, view, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetActivePhase godoc
// @Summary Активная фаза события и обратный отсчёт
// @Tags events
// @Produce json
// @Param eventID path string true "ID события"
// @Success 200 {object} services.ActivePhaseView
// @Failure 404 {object} map[string]string
// @Router /api/events/{eventID}/active-phase [get]
func (h *EventHandler) GetActivePhase(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.eventService.GetActivePhase(r.Context(), eventID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, view, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListParticipants godoc
// @Summary Участники события без повторов
// @Tags events
// @Produce json
// @Param eventID path string true "ID события"
// @Success 200 {object} map[string][]models.Participant
// @Router /api/events/{eventID}/participants [get]
func (h *EventHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	participants, err := h.eventService.ListParticipants(r.Context(), eventID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{"participants": participants}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
