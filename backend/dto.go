package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/Dosada05/talent-vote/models"
)

// Форматы дат, которые встречаются в ответах бэкенда. Даты без зоны
// интерпретируются в зоне платформы.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(raw *string, loc *time.Location) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return &t, nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: invalid timestamp %q", ErrMalformedResponse, value)
}

// Структуры ниже повторяют формат ответа бэкенда (camelCase) и переводятся в models.

type eventDTO struct {
	ID          models.FlexibleID `json:"id"`
	Name        string            `json:"name"`
	Description *string           `json:"description"`
	Image       *string           `json:"image"`
	VotePrice   int64             `json:"votePrice"`
	Tournaments []tournamentDTO   `json:"tournaments"`
}

type tournamentDTO struct {
	ID      models.FlexibleID `json:"id"`
	Name    string            `json:"name"`
	EventID models.FlexibleID `json:"eventId"`
	Phases  []phaseDTO        `json:"phases"`
}

type phaseDTO struct {
	ID           models.FlexibleID `json:"id"`
	Name         string            `json:"name"`
	Order        int               `json:"order"`
	StartDate    *string           `json:"startDate"`
	EndDate      *string           `json:"endDate"`
	Participants []participantDTO  `json:"participants"`
}

type participantDTO struct {
	ID          models.FlexibleID `json:"id"`
	FirstName   string            `json:"firstName"`
	LastName    string            `json:"lastName"`
	Description *string           `json:"description"`
	Avatar      *string           `json:"avatar"`
	TotalVotes  int64             `json:"totalVotes"`
	Videos      []videoDTO        `json:"videos"`
}

type videoDTO struct {
	ID  models.FlexibleID `json:"id"`
	URL string            `json:"url"`
}

type paymentDTO struct {
	ID            models.FlexibleID `json:"id"`
	Status        string            `json:"status"`
	Amount        int64             `json:"amount"`
	VoteCount     int64             `json:"voteCount"`
	ParticipantID models.FlexibleID `json:"participantId"`
	TournamentID  models.FlexibleID `json:"tournamentId"`
	PhaseID       models.FlexibleID `json:"phaseId"`
	CreatedAt     *time.Time        `json:"createdAt"`
}

func (e *eventDTO) toModel(loc *time.Location) (*models.Event, error) {
	event := &models.Event{
		ID:          e.ID.String(),
		Name:        e.Name,
		Description: e.Description,
		ImageKey:    e.Image,
		VotePrice:   e.VotePrice,
		Tournaments: make([]models.Tournament, 0, len(e.Tournaments)),
	}
	for _, t := range e.Tournaments {
		tournament := models.Tournament{
			ID:      t.ID.String(),
			Name:    t.Name,
			EventID: t.EventID.String(),
			Phases:  make([]models.Phase, 0, len(t.Phases)),
		}
		if tournament.EventID == "" {
			tournament.EventID = event.ID
		}
		for _, p := range t.Phases {
			start, err := parseTimestamp(p.StartDate, loc)
			if err != nil {
				return nil, fmt.Errorf("phase %s start: %w", p.ID, err)
			}
			end, err := parseTimestamp(p.EndDate, loc)
			if err != nil {
				return nil, fmt.Errorf("phase %s end: %w", p.ID, err)
			}
			phase := models.Phase{
				ID:           p.ID.String(),
				Name:         p.Name,
				Order:        p.Order,
				StartDate:    start,
				EndDate:      end,
				TournamentID: tournament.ID,
				Participants: make([]models.Participant, 0, len(p.Participants)),
			}
			for _, pt := range p.Participants {
				phase.Participants = append(phase.Participants, pt.toModel())
			}
			tournament.Phases = append(tournament.Phases, phase)
		}
		event.Tournaments = append(event.Tournaments, tournament)
	}
	return event, nil
}

func (p participantDTO) toModel() models.Participant {
	videos := make([]models.Video, 0, len(p.Videos))
	for _, v := range p.Videos {
		videos = append(videos, models.Video{ID: v.ID.String(), URL: v.URL})
	}
	return models.Participant{
		ID:          p.ID.String(),
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Description: p.Description,
		AvatarKey:   p.Avatar,
		TotalVotes:  p.TotalVotes,
		Videos:      videos,
	}
}

func (p *paymentDTO) toModel() *models.Payment {
	status := models.PaymentStatus(p.Status)
	if status == "" {
		status = models.PaymentStatusPending
	}
	return &models.Payment{
		ID:            p.ID.String(),
		Status:        status,
		Amount:        p.Amount,
		VoteCount:     p.VoteCount,
		ParticipantID: p.ParticipantID.String(),
		TournamentID:  p.TournamentID.String(),
		PhaseID:       p.PhaseID.String(),
		CreatedAt:     p.CreatedAt,
	}
}
