package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Dosada05/talent-vote/live"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin уже ограничен CORS-настройками роутера для HTTP; сокет открыт только на чтение.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	hub     *live.Hub
	tracker *live.Tracker
	logger  *slog.Logger
}

func NewWebSocketHandler(hub *live.Hub, tracker *live.Tracker, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hub,
		tracker: tracker,
		logger:  logger,
	}
}

// ServeWs подписывает клиента на обратный отсчёт события.
// Клиент подключается к /ws/events/{eventID}
// @Summary WebSocket обратного отсчёта
// @Tags live
// @Param eventID path string true "ID события"
// @Success 101 "Switching Protocols"
// @Failure 404 {object} map[string]string
// @Router /ws/events/{eventID} [get]
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	// Событие загружается до апгрейда, чтобы неизвестный ID получил обычный 404.
	if err := h.tracker.Track(r.Context(), eventID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту ошибкой.
		h.logger.Warn("websocket upgrade failed", slog.String("event_id", eventID), slog.Any("error", err))
		return
	}

	room := live.RoomForEvent(eventID)
	client := live.NewClient(h.hub, conn, room)
	if !h.hub.Register(r.Context(), client) {
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	h.logger.Debug("websocket client subscribed", slog.String("room", room))

	// Событие уже в кэше: это только первый тик для нового клиента.
	if err := h.tracker.Track(r.Context(), eventID); err != nil {
		h.logger.Warn("initial countdown tick failed", slog.String("event_id", eventID), slog.Any("error", err))
	}
}
