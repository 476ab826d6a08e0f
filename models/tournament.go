package models

import "time"

// Event - шоу/конкурс верхнего уровня, содержит турниры.
type Event struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description *string      `json:"description,omitempty"`
	ImageKey    *string      `json:"-"`
	ImageURL    *string      `json:"image_url,omitempty"`
	VotePrice   int64        `json:"vote_price"`
	Tournaments []Tournament `json:"tournaments"`
}

// Tournament - трек конкурса внутри события, разбит на фазы.
type Tournament struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	EventID string  `json:"event_id"`
	Phases  []Phase `json:"phases"`
}

// Phase - этап турнира с окном голосования. Без дат фаза никогда не активна.
type Phase struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Order        int           `json:"order"`
	StartDate    *time.Time    `json:"start_date,omitempty"`
	EndDate      *time.Time    `json:"end_date,omitempty"`
	TournamentID string        `json:"tournament_id"`
	Participants []Participant `json:"participants"`
}

// HasWindow reports whether both boundaries are set.
func (p Phase) HasWindow() bool {
	return p.StartDate != nil && p.EndDate != nil
}
