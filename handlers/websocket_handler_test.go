package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/talent-vote/live"
	"github.com/Dosada05/talent-vote/models"
)

func newWebSocketServer(t *testing.T, events map[string]*models.Event) (*httptest.Server, *live.Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := discardLogger()
	hub := live.NewHub(logger)
	go hub.Run(ctx)
	tracker := live.NewTracker(hub, &fakeEventService{events: events}, time.UTC, logger)
	go tracker.Run(ctx)

	router := chi.NewRouter()
	router.Get("/ws/events/{eventID}", NewWebSocketHandler(hub, tracker, logger).ServeWs)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, hub
}

func TestWebSocketHandler_StreamsCountdown(t *testing.T) {
	server, hub := newWebSocketServer(t, map[string]*models.Event{"e1": liveEvent("e1")})

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events/e1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.RoomSize(live.RoomForEvent("e1")) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg struct {
		Type    string                `json:"type"`
		Payload live.CountdownPayload `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, live.MessageCountdownTick, msg.Type)
	assert.Equal(t, "ph1", msg.Payload.PhaseID)
	require.NotNil(t, msg.Payload.Countdown)
	assert.False(t, msg.Payload.Countdown.Elapsed)
}

func TestWebSocketHandler_UnknownEvent(t *testing.T) {
	server, _ := newWebSocketServer(t, map[string]*models.Event{})

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events/missing"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not_found", body.Error)
}
