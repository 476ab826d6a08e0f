package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Dosada05/talent-vote/backend"
	"github.com/Dosada05/talent-vote/models"
)

// AssetURLResolver turns stored media keys into public URLs.
type AssetURLResolver interface {
	GetPublicURL(key string) string
}

type EventSource interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
}

// EventView - событие вместе с активной фазой на момент запроса.
type EventView struct {
	Event       *models.Event `json:"event"`
	ActivePhase *models.Phase `json:"active_phase"`
	Countdown   *Countdown    `json:"countdown"`
}

type ActivePhaseView struct {
	Phase     *models.Phase `json:"phase"`
	Countdown *Countdown    `json:"countdown,omitempty"`
}

type EventService interface {
	GetEvent(ctx context.Context, eventID string) (*EventView, error)
	GetActivePhase(ctx context.Context, eventID string) (*ActivePhaseView, error)
	ListParticipants(ctx context.Context, eventID string) ([]models.Participant, error)
	// LoadEvent returns the validated tree without views; used by the live refresher.
	LoadEvent(ctx context.Context, eventID string) (*models.Event, error)
	Location() *time.Location
}

type eventService struct {
	source   EventSource
	assets   AssetURLResolver
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewEventService: assets может быть nil, тогда URL медиа не заполняются.
func NewEventService(source EventSource, assets AssetURLResolver, loc *time.Location, logger *slog.Logger) EventService {
	if loc == nil {
		loc = time.UTC
	}
	return &eventService{
		source:   source,
		assets:   assets,
		location: loc,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *eventService) Location() *time.Location {
	return s.location
}

func (s *eventService) LoadEvent(ctx context.Context, eventID string) (*models.Event, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, ErrEventIDRequired)
	}

	event, err := s.source.GetEvent(ctx, eventID)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
		}
		return nil, err
	}
	if err := ValidateEventTree(event); err != nil {
		s.logger.WarnContext(ctx, "Backend returned an invalid event tree",
			slog.String("event_id", eventID), slog.Any("error", err))
		return nil, err
	}

	populateEventAssetURLs(event, s.assets)
	return event, nil
}

func (s *eventService) GetEvent(ctx context.Context, eventID string) (*EventView, error) {
	event, err := s.LoadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	phase := ResolveActivePhase(event, now, s.location)
	return &EventView{
		Event:       event,
		ActivePhase: phase,
		Countdown:   PhaseCountdown(phase, now, s.location),
	}, nil
}

func (s *eventService) GetActivePhase(ctx context.Context, eventID string) (*ActivePhaseView, error) {
	event, err := s.LoadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	phase := ResolveActivePhase(event, now, s.location)
	return &ActivePhaseView{Phase: phase, Countdown: PhaseCountdown(phase, now, s.location)}, nil
}

func (s *eventService) ListParticipants(ctx context.Context, eventID string) ([]models.Participant, error) {
	event, err := s.LoadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return UniqueParticipants(event), nil
}
