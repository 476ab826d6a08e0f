package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/talent-vote/models"
	"github.com/Dosada05/talent-vote/services"
)

// EventLoader is the part of the event service the tracker needs.
type EventLoader interface {
	LoadEvent(ctx context.Context, eventID string) (*models.Event, error)
}

type trackedEvent struct {
	event *models.Event
	phase *models.Phase
}

type CountdownPayload struct {
	EventID   string              `json:"event_id"`
	PhaseID   string              `json:"phase_id,omitempty"`
	PhaseName string              `json:"phase_name,omitempty"`
	Countdown *services.Countdown `json:"countdown"`
}

type PhaseChangedPayload struct {
	EventID string        `json:"event_id"`
	Phase   *models.Phase `json:"phase"`
}

type VotesUpdatedPayload struct {
	EventID string               `json:"event_id"`
	Update  services.VotesUpdate `json:"update"`
}

// Tracker кэширует активную фазу каждого события с подписчиками. Тик читает
// только кэш; сеть трогает лишь Track и Refresh.
type Tracker struct {
	hub      *Hub
	loader   EventLoader
	location *time.Location
	limit    int
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.RWMutex
	events map[string]*trackedEvent
}

func NewTracker(hub *Hub, loader EventLoader, loc *time.Location, logger *slog.Logger) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{
		hub:      hub,
		loader:   loader,
		location: loc,
		limit:    4,
		now:      time.Now,
		logger:   logger,
		events:   make(map[string]*trackedEvent),
	}
}

// Track loads the event if it is not cached yet and sends a first tick.
func (t *Tracker) Track(ctx context.Context, eventID string) error {
	t.mu.RLock()
	_, cached := t.events[eventID]
	t.mu.RUnlock()

	if !cached {
		if err := t.reload(ctx, eventID); err != nil {
			return err
		}
	}
	t.tickEvent(eventID, t.now())
	return nil
}

func (t *Tracker) reload(ctx context.Context, eventID string) error {
	event, err := t.loader.LoadEvent(ctx, eventID)
	if err != nil {
		return err
	}
	phase := services.ResolveActivePhase(event, t.now(), t.location)

	t.mu.Lock()
	previous, existed := t.events[eventID]
	t.events[eventID] = &trackedEvent{event: event, phase: phase}
	t.mu.Unlock()

	if existed && phaseID(previous.phase) != phaseID(phase) {
		t.logger.Info("active phase changed",
			slog.String("event_id", eventID),
			slog.String("from", phaseID(previous.phase)),
			slog.String("to", phaseID(phase)))
		t.hub.BroadcastToRoom(RoomForEvent(eventID), Message{
			Type:    MessagePhaseChanged,
			Payload: PhaseChangedPayload{EventID: eventID, Phase: phase},
		})
	}
	return nil
}

func phaseID(p *models.Phase) string {
	if p == nil {
		return ""
	}
	return p.ID
}

// Tick рассылает обратный отсчёт всем комнатам; события без подписчиков забываются.
func (t *Tracker) Tick() {
	now := t.now()
	for _, eventID := range t.trackedIDs() {
		if !t.hub.HasRoom(RoomForEvent(eventID)) {
			t.mu.Lock()
			delete(t.events, eventID)
			t.mu.Unlock()
			continue
		}
		t.tickEvent(eventID, now)
	}
}

func (t *Tracker) tickEvent(eventID string, now time.Time) {
	t.mu.RLock()
	tracked, ok := t.events[eventID]
	t.mu.RUnlock()
	if !ok {
		return
	}

	payload := CountdownPayload{EventID: eventID}
	if tracked.phase != nil {
		payload.PhaseID = tracked.phase.ID
		payload.PhaseName = tracked.phase.Name
		payload.Countdown = services.PhaseCountdown(tracked.phase, now, t.location)
	}
	t.hub.BroadcastToRoom(RoomForEvent(eventID), Message{Type: MessageCountdownTick, Payload: payload})
}

// Run ticks once per second until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

// Refresh перезагружает все отслеживаемые события параллельно (не более limit
// одновременно) и пересчитывает активную фазу. Ошибка одного события не мешает остальным.
func (t *Tracker) Refresh(ctx context.Context) {
	ids := t.trackedIDs()
	if len(ids) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.limit)
	for _, id := range ids {
		eventID := id
		g.Go(func() error {
			if err := t.reload(gctx, eventID); err != nil {
				t.logger.Warn("failed to refresh event",
					slog.String("event_id", eventID), slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// NotifyVotesUpdated рассылает VOTES_UPDATED в комнаты событий, которым принадлежит турнир.
func (t *Tracker) NotifyVotesUpdated(update services.VotesUpdate) {
	t.mu.RLock()
	var targets []string
	for eventID, tracked := range t.events {
		for _, tournament := range tracked.event.Tournaments {
			if tournament.ID == update.TournamentID {
				targets = append(targets, eventID)
				break
			}
		}
	}
	t.mu.RUnlock()

	for _, eventID := range targets {
		t.hub.BroadcastToRoom(RoomForEvent(eventID), Message{
			Type:    MessageVotesUpdated,
			Payload: VotesUpdatedPayload{EventID: eventID, Update: update},
		})
	}
}

func (t *Tracker) trackedIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.events))
	for id := range t.events {
		ids = append(ids, id)
	}
	return ids
}
