package models

import "time"

// PaymentStatus - статус платёжной записи на стороне бэкенда.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusApproved  PaymentStatus = "approved"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// CurrencyXOF is the only currency the gateway is asked to charge in.
const CurrencyXOF = "XOF"

// VoteIntent - запрос на покупку N голосов. Не сохраняется, живёт один вызов.
type VoteIntent struct {
	ParticipantID string `json:"participant_id"`
	VoteCount     int64  `json:"vote_count"`
	UnitPrice     int64  `json:"unit_price"`
	Amount        int64  `json:"amount"`
	TournamentID  string `json:"tournament_id"`
	PhaseID       string `json:"phase_id"`
}

// Payment is the backend's payment record; only the id is relied upon.
type Payment struct {
	ID            string        `json:"id"`
	Status        PaymentStatus `json:"status"`
	Amount        int64         `json:"amount"`
	VoteCount     int64         `json:"vote_count"`
	ParticipantID string        `json:"participant_id"`
	TournamentID  string        `json:"tournament_id"`
	PhaseID       string        `json:"phase_id"`
	CreatedAt     *time.Time    `json:"created_at,omitempty"`
}

// PaymentMetadata is embedded into the gateway transaction so the webhook can
// find its way back to the payment record.
type PaymentMetadata struct {
	ParticipantID FlexibleID `json:"participantId"`
	VoteCount     int64      `json:"voteCount"`
	UnitPrice     int64      `json:"unitPrice,omitempty"`
	TournamentID  FlexibleID `json:"tournamentId"`
	PhaseID       FlexibleID `json:"phaseId"`
	PaymentID     FlexibleID `json:"paymentId"`
}

func (m PaymentMetadata) Complete() bool {
	return m.ParticipantID != "" && m.TournamentID != "" && m.PhaseID != "" && m.PaymentID != "" && m.VoteCount > 0
}
