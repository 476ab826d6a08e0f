package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/talent-vote/backend"
	"github.com/Dosada05/talent-vote/models"
)

type stubEventSource struct {
	event *models.Event
	err   error
	calls int
}

func (s *stubEventSource) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	s.calls++
	return s.event, s.err
}

type prefixResolver string

func (p prefixResolver) GetPublicURL(key string) string { return string(p) + key }

func strPtr(s string) *string { return &s }

func sampleEvent() *models.Event {
	return &models.Event{
		ID:        "e1",
		Name:      "Talents 2025",
		ImageKey:  strPtr("events/e1.png"),
		VotePrice: 100,
		Tournaments: []models.Tournament{{
			ID: "t1",
			Phases: []models.Phase{
				{
					ID: "P1", StartDate: ptr(at(2025, 1, 1, 0, 0, 0)), EndDate: ptr(at(2025, 1, 10, 23, 59, 59)),
					Participants: []models.Participant{{ID: "p1", AvatarKey: strPtr("avatars/p1.png")}, {ID: "p2"}},
				},
				{
					ID: "P2", StartDate: ptr(at(2025, 1, 11, 0, 0, 0)), EndDate: ptr(at(2025, 1, 20, 23, 59, 59)),
					Participants: []models.Participant{{ID: "p1", AvatarKey: strPtr("avatars/p1.png")}},
				},
			},
		}},
	}
}

func newEventFixture(source EventSource) *eventService {
	svc := NewEventService(source, prefixResolver("https://cdn.example.com/"), wat, discardLogger()).(*eventService)
	svc.now = func() time.Time { return at(2025, 1, 15, 12, 0, 0) }
	return svc
}

func TestEventService_GetEvent(t *testing.T) {
	svc := newEventFixture(&stubEventSource{event: sampleEvent()})

	view, err := svc.GetEvent(context.Background(), "e1")
	require.NoError(t, err)
	require.NotNil(t, view.ActivePhase)
	assert.Equal(t, "P2", view.ActivePhase.ID)
	require.NotNil(t, view.Countdown)
	assert.Equal(t, int64(5), view.Countdown.Days)

	require.NotNil(t, view.Event.ImageURL)
	assert.Equal(t, "https://cdn.example.com/events/e1.png", *view.Event.ImageURL)
	p1 := view.Event.Tournaments[0].Phases[0].Participants[0]
	require.NotNil(t, p1.AvatarURL)
	assert.Equal(t, "https://cdn.example.com/avatars/p1.png", *p1.AvatarURL)
	assert.Nil(t, view.Event.Tournaments[0].Phases[0].Participants[1].AvatarURL)
}

func TestEventService_GetActivePhase_None(t *testing.T) {
	svc := newEventFixture(&stubEventSource{event: sampleEvent()})
	svc.now = func() time.Time { return at(2025, 2, 1, 0, 0, 0) }

	view, err := svc.GetActivePhase(context.Background(), "e1")
	require.NoError(t, err)
	assert.Nil(t, view.Phase)
	assert.Nil(t, view.Countdown)
}

func TestEventService_ListParticipants(t *testing.T) {
	svc := newEventFixture(&stubEventSource{event: sampleEvent()})

	participants, err := svc.ListParticipants(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, "p1", participants[0].ID)
	assert.Equal(t, "p2", participants[1].ID)
}

func TestEventService_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		svc := newEventFixture(&stubEventSource{err: &backend.APIError{StatusCode: 404, Message: "Event not found"}})
		_, err := svc.GetEvent(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrEventNotFound)
	})

	t.Run("upstream failure passes through", func(t *testing.T) {
		upstream := &backend.APIError{StatusCode: 500, Message: "boom"}
		svc := newEventFixture(&stubEventSource{err: upstream})
		_, err := svc.GetEvent(context.Background(), "e1")
		var apiErr *backend.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, 500, apiErr.StatusCode)
	})

	t.Run("reversed window rejected", func(t *testing.T) {
		event := sampleEvent()
		event.Tournaments[0].Phases[0].StartDate = ptr(at(2025, 2, 1, 0, 0, 0))
		svc := newEventFixture(&stubEventSource{event: event})
		_, err := svc.GetActivePhase(context.Background(), "e1")
		assert.ErrorIs(t, err, ErrInvalidPhaseWindow)
	})

	t.Run("empty id makes no call", func(t *testing.T) {
		source := &stubEventSource{event: sampleEvent()}
		svc := newEventFixture(source)
		_, err := svc.GetEvent(context.Background(), "  ")
		assert.ErrorIs(t, err, ErrEventIDRequired)
		assert.Zero(t, source.calls)
	})
}
