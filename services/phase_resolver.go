package services

import (
	"fmt"
	"time"

	"github.com/Dosada05/talent-vote/models"
)

// ResolveActivePhase возвращает первую фазу (турниры и фазы в исходном порядке),
// окно которой содержит now. Границы включительно, все моменты приводятся к loc.
// Фаза без одной из границ никогда не активна. nil, если совпадений нет.
func ResolveActivePhase(event *models.Event, now time.Time, loc *time.Location) *models.Phase {
	if event == nil {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	current := now.In(loc)

	for ti := range event.Tournaments {
		phases := event.Tournaments[ti].Phases
		for pi := range phases {
			phase := &phases[pi]
			if !phase.HasWindow() {
				continue
			}
			start := phase.StartDate.In(loc)
			end := phase.EndDate.In(loc)
			if !current.Before(start) && !current.After(end) {
				return phase
			}
		}
	}
	return nil
}

// Countdown - разбивка оставшегося времени до конца фазы.
type Countdown struct {
	Days    int64     `json:"days"`
	Hours   int64     `json:"hours"`
	Minutes int64     `json:"minutes"`
	Seconds int64     `json:"seconds"`
	Elapsed bool      `json:"elapsed"`
	EndsAt  time.Time `json:"ends_at"`
}

// ComputeCountdown freezes at zero once now is past end.
func ComputeCountdown(end, now time.Time) Countdown {
	c := Countdown{EndsAt: end}
	remaining := end.Sub(now)
	if remaining <= 0 {
		c.Elapsed = true
		return c
	}

	total := int64(remaining / time.Second)
	c.Days = total / 86400
	c.Hours = (total % 86400) / 3600
	c.Minutes = (total % 3600) / 60
	c.Seconds = total % 60
	return c
}

// PhaseCountdown is a nil-safe helper for views.
func PhaseCountdown(phase *models.Phase, now time.Time, loc *time.Location) *Countdown {
	if phase == nil || phase.EndDate == nil {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	c := ComputeCountdown(phase.EndDate.In(loc), now.In(loc))
	return &c
}

// UniqueParticipants собирает участников всех фаз без повторов, в порядке первого появления.
func UniqueParticipants(event *models.Event) []models.Participant {
	result := []models.Participant{}
	if event == nil {
		return result
	}
	seen := make(map[string]struct{})
	for _, tournament := range event.Tournaments {
		for _, phase := range tournament.Phases {
			for _, p := range phase.Participants {
				if _, ok := seen[p.ID]; ok {
					continue
				}
				seen[p.ID] = struct{}{}
				result = append(result, p)
			}
		}
	}
	return result
}

// ValidateEventTree отклоняет дерево с фазой, у которой start > end.
func ValidateEventTree(event *models.Event) error {
	if event == nil {
		return fmt.Errorf("%w: event is empty", ErrValidationFailed)
	}
	for _, tournament := range event.Tournaments {
		for _, phase := range tournament.Phases {
			if phase.HasWindow() && phase.StartDate.After(*phase.EndDate) {
				return fmt.Errorf("%w: phase %s of tournament %s (start %s, end %s)",
					ErrInvalidPhaseWindow, phase.ID, tournament.ID,
					phase.StartDate.Format(time.RFC3339), phase.EndDate.Format(time.RFC3339))
			}
		}
	}
	return nil
}
