package models

import (
	"encoding/json"
	"time"
)

// GatewayWebhook - тело уведомления платёжного шлюза.
type GatewayWebhook struct {
	ID     FlexibleID         `json:"id"`
	Name   string             `json:"name"`
	Entity GatewayTransaction `json:"entity"`
}

type GatewayTransaction struct {
	ID                FlexibleID      `json:"id"`
	Reference         string          `json:"reference"`
	Status            string          `json:"status"`
	Amount            int64           `json:"amount"`
	MerchantReference string          `json:"merchant_reference"`
	CustomMetadata    json.RawMessage `json:"custom_metadata"`
}

// GatewayEventState - состояние записи в журнале обработанных уведомлений.
type GatewayEventState string

const (
	GatewayEventClaimed GatewayEventState = "claimed"
	GatewayEventApplied GatewayEventState = "applied"
)

// GatewayEvent is a row of the reconciliation ledger.
type GatewayEvent struct {
	ID                int64             `json:"id" db:"id"`
	TransactionID     string            `json:"transaction_id" db:"transaction_id"`
	Status            PaymentStatus     `json:"status" db:"status"`
	PaymentID         string            `json:"payment_id" db:"payment_id"`
	ParticipantID     string            `json:"participant_id" db:"participant_id"`
	TournamentID      string            `json:"tournament_id" db:"tournament_id"`
	PhaseID           string            `json:"phase_id" db:"phase_id"`
	VoteCount         int64             `json:"vote_count" db:"vote_count"`
	Amount            int64             `json:"amount" db:"amount"`
	MerchantReference string            `json:"merchant_reference" db:"merchant_reference"`
	State             GatewayEventState `json:"state" db:"state"`
	Attempts          int               `json:"attempts" db:"attempts"`
	ArchiveKey        *string           `json:"archive_key,omitempty" db:"archive_key"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	AppliedAt         *time.Time        `json:"applied_at,omitempty" db:"applied_at"`
}
