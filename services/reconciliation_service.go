package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/Dosada05/talent-vote/backend"
	"github.com/Dosada05/talent-vote/models"
	"github.com/Dosada05/talent-vote/repositories"
)

// Routing keys of the events published after a webhook is applied.
const (
	RoutingKeyVoteConfirmed = "vote.confirmed"
	RoutingKeyPaymentFailed = "payment.failed"
)

type PaymentStatusUpdater interface {
	UpdatePaymentStatus(ctx context.Context, paymentID string, update backend.PaymentStatusUpdate) error
}

// VotesUpdate описывает подтверждённую покупку голосов для live-подписчиков.
type VotesUpdate struct {
	TournamentID  string `json:"tournament_id"`
	PhaseID       string `json:"phase_id"`
	ParticipantID string `json:"participant_id"`
	VoteCount     int64  `json:"vote_count"`
}

type VotesNotifier interface {
	NotifyVotesUpdated(update VotesUpdate)
}

type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}

type PayloadArchiver interface {
	ArchiveWebhook(ctx context.Context, transactionID string, body []byte) (string, error)
}

type ReconcileOutcome string

const (
	OutcomeApplied   ReconcileOutcome = "applied"
	OutcomeDuplicate ReconcileOutcome = "duplicate"
	OutcomeIgnored   ReconcileOutcome = "ignored"
	// OutcomeRejected: уведомление подлинное, но голоса не зачислены.
	OutcomeRejected ReconcileOutcome = "rejected"
)

type ReconcileResult struct {
	Outcome       ReconcileOutcome     `json:"outcome"`
	TransactionID string               `json:"transaction_id,omitempty"`
	Status        models.PaymentStatus `json:"status,omitempty"`
	PaymentID     string               `json:"payment_id,omitempty"`
}

// PaymentEvent is the message published to the events exchange.
type PaymentEvent struct {
	PaymentID         string               `json:"payment_id"`
	TransactionID     string               `json:"transaction_id"`
	Status            models.PaymentStatus `json:"status"`
	ParticipantID     string               `json:"participant_id"`
	TournamentID      string               `json:"tournament_id"`
	PhaseID           string               `json:"phase_id"`
	VoteCount         int64                `json:"vote_count"`
	Amount            int64                `json:"amount"`
	MerchantReference string               `json:"merchant_reference,omitempty"`
}

type ReconciliationService interface {
	HandleWebhook(ctx context.Context, body []byte) (*ReconcileResult, error)
	ListEvents(ctx context.Context, limit, offset int) ([]models.GatewayEvent, error)
}

type reconciliationService struct {
	ledger    repositories.GatewayEventRepository
	payments  PaymentStatusUpdater
	notifier  VotesNotifier
	publisher EventPublisher
	archiver  PayloadArchiver
	logger    *slog.Logger
}

// NewReconciliationService: notifier, publisher и archiver необязательны (nil - отключено).
func NewReconciliationService(
	ledger repositories.GatewayEventRepository,
	payments PaymentStatusUpdater,
	notifier VotesNotifier,
	publisher EventPublisher,
	archiver PayloadArchiver,
	logger *slog.Logger,
) ReconciliationService {
	return &reconciliationService{
		ledger:    ledger,
		payments:  payments,
		notifier:  notifier,
		publisher: publisher,
		archiver:  archiver,
		logger:    logger,
	}
}

// HandleWebhook применяет уведомление шлюза к платёжной записи ровно один раз
// на пару (транзакция, статус). Подпись проверяется до вызова.
func (s *reconciliationService) HandleWebhook(ctx context.Context, body []byte) (*ReconcileResult, error) {
	var webhook models.GatewayWebhook
	if err := json.Unmarshal(body, &webhook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookEvent, err)
	}

	transactionID := webhook.Entity.ID.String()
	if transactionID == "" {
		return nil, fmt.Errorf("%w: transaction id is missing", ErrInvalidWebhookEvent)
	}

	status, ok := mapGatewayStatus(webhook.Name, webhook.Entity.Status)
	if !ok {
		s.logger.InfoContext(ctx, "Ignoring gateway event",
			slog.String("event", webhook.Name),
			slog.String("transaction_id", transactionID),
			slog.String("gateway_status", webhook.Entity.Status))
		return &ReconcileResult{Outcome: OutcomeIgnored, TransactionID: transactionID}, nil
	}

	metadata, err := decodeMetadata(webhook.Entity.CustomMetadata)
	if err != nil {
		return nil, err
	}

	if status == models.PaymentStatusApproved {
		if err := checkPaidAmount(metadata, webhook.Entity.Amount); err != nil {
			s.logger.ErrorContext(ctx, "Refusing to credit votes",
				slog.String("transaction_id", transactionID),
				slog.String("payment_id", metadata.PaymentID.String()),
				slog.Int64("vote_count", metadata.VoteCount),
				slog.Int64("unit_price", metadata.UnitPrice),
				slog.Int64("amount", webhook.Entity.Amount),
				slog.Any("error", err))
			return &ReconcileResult{
				Outcome:       OutcomeRejected,
				TransactionID: transactionID,
				Status:        status,
				PaymentID:     metadata.PaymentID.String(),
			}, nil
		}
	}

	// Позднее declined/expired не должно отменять уже зачисленную оплату.
	if status == models.PaymentStatusFailed {
		approved, err := s.ledger.IsApplied(ctx, transactionID, models.PaymentStatusApproved)
		if err != nil {
			return nil, fmt.Errorf("%w: lookup: %w", ErrReconciliation, err)
		}
		if approved {
			s.logger.WarnContext(ctx, "Ignoring failure for an approved transaction",
				slog.String("transaction_id", transactionID),
				slog.String("event", webhook.Name))
			return &ReconcileResult{
				Outcome:       OutcomeIgnored,
				TransactionID: transactionID,
				Status:        status,
				PaymentID:     metadata.PaymentID.String(),
			}, nil
		}
	}

	event := &models.GatewayEvent{
		TransactionID:     transactionID,
		Status:            status,
		PaymentID:         metadata.PaymentID.String(),
		ParticipantID:     metadata.ParticipantID.String(),
		TournamentID:      metadata.TournamentID.String(),
		PhaseID:           metadata.PhaseID.String(),
		VoteCount:         metadata.VoteCount,
		Amount:            webhook.Entity.Amount,
		MerchantReference: webhook.Entity.MerchantReference,
	}
	result := &ReconcileResult{TransactionID: transactionID, Status: status, PaymentID: event.PaymentID}

	claimed, err := s.ledger.Claim(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("%w: claim: %w", ErrReconciliation, err)
	}
	if !claimed {
		s.logger.InfoContext(ctx, "Duplicate gateway event acknowledged",
			slog.String("transaction_id", transactionID), slog.String("status", string(status)))
		result.Outcome = OutcomeDuplicate
		return result, nil
	}

	archiveKey := s.archive(ctx, transactionID, body)

	update := backend.PaymentStatusUpdate{
		Status:               status,
		GatewayTransactionID: transactionID,
		MerchantReference:    event.MerchantReference,
		ParticipantID:        event.ParticipantID,
		TournamentID:         event.TournamentID,
		PhaseID:              event.PhaseID,
		VoteCount:            event.VoteCount,
		Amount:               event.Amount,
	}
	if err := s.payments.UpdatePaymentStatus(ctx, event.PaymentID, update); err != nil {
		if releaseErr := s.ledger.Release(ctx, event.ID); releaseErr != nil {
			s.logger.ErrorContext(ctx, "Failed to release gateway event claim",
				slog.Int64("event_id", event.ID), slog.Any("error", releaseErr))
		}
		return nil, fmt.Errorf("%w: update payment %s: %w", ErrReconciliation, event.PaymentID, err)
	}

	// Бэкенд уже применил статус; повтор уведомления после сбоя здесь
	// будет повторно отправлен бэкенду, который считает его идемпотентным.
	if err := s.ledger.MarkApplied(ctx, event.ID, archiveKey); err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark gateway event applied",
			slog.Int64("event_id", event.ID), slog.Any("error", err))
	}

	s.logger.InfoContext(ctx, "Gateway event applied",
		slog.String("transaction_id", transactionID),
		slog.String("payment_id", event.PaymentID),
		slog.String("status", string(status)),
		slog.Int64("vote_count", event.VoteCount))

	s.fanOut(ctx, event)
	result.Outcome = OutcomeApplied
	return result, nil
}

func (s *reconciliationService) ListEvents(ctx context.Context, limit, offset int) ([]models.GatewayEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.ledger.List(ctx, limit, offset)
}

func (s *reconciliationService) archive(ctx context.Context, transactionID string, body []byte) *string {
	if s.archiver == nil {
		return nil
	}
	key, err := s.archiver.ArchiveWebhook(ctx, transactionID, body)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to archive gateway payload",
			slog.String("transaction_id", transactionID), slog.Any("error", err))
		return nil
	}
	return &key
}

func (s *reconciliationService) fanOut(ctx context.Context, event *models.GatewayEvent) {
	routingKey := RoutingKeyPaymentFailed
	if event.Status == models.PaymentStatusApproved {
		routingKey = RoutingKeyVoteConfirmed
		if s.notifier != nil {
			s.notifier.NotifyVotesUpdated(VotesUpdate{
				TournamentID:  event.TournamentID,
				PhaseID:       event.PhaseID,
				ParticipantID: event.ParticipantID,
				VoteCount:     event.VoteCount,
			})
		}
	}

	if s.publisher == nil {
		return
	}
	msg := PaymentEvent{
		PaymentID:         event.PaymentID,
		TransactionID:     event.TransactionID,
		Status:            event.Status,
		ParticipantID:     event.ParticipantID,
		TournamentID:      event.TournamentID,
		PhaseID:           event.PhaseID,
		VoteCount:         event.VoteCount,
		Amount:            event.Amount,
		MerchantReference: event.MerchantReference,
	}
	if err := s.publisher.Publish(ctx, routingKey, msg); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish payment event",
			slog.String("routing_key", routingKey),
			slog.String("payment_id", event.PaymentID),
			slog.Any("error", err))
	}
}

// mapGatewayStatus: имя события ("transaction.approved") важнее поля status.
func mapGatewayStatus(name, status string) (models.PaymentStatus, bool) {
	candidate := strings.ToLower(strings.TrimSpace(status))
	if suffix, ok := strings.CutPrefix(strings.ToLower(strings.TrimSpace(name)), "transaction."); ok && suffix != "" {
		candidate = suffix
	}
	switch candidate {
	case "approved":
		return models.PaymentStatusApproved, true
	case "declined", "canceled", "cancelled", "expired":
		return models.PaymentStatusFailed, true
	default:
		return "", false
	}
}

// checkPaidAmount: шлюз должен был списать не меньше voteCount × unitPrice.
// Без цены в метаданных сумму проверить нельзя, такие голоса не зачисляются.
func checkPaidAmount(metadata models.PaymentMetadata, paid int64) error {
	if metadata.UnitPrice < 1 {
		return fmt.Errorf("%w: unit price is missing from metadata", ErrPaymentUnderpaid)
	}
	if metadata.VoteCount > math.MaxInt64/metadata.UnitPrice {
		return fmt.Errorf("%w: expected amount overflows", ErrPaymentUnderpaid)
	}
	if expected := metadata.VoteCount * metadata.UnitPrice; paid < expected {
		return fmt.Errorf("%w: paid %d, expected %d", ErrPaymentUnderpaid, paid, expected)
	}
	return nil
}

// decodeMetadata принимает custom_metadata объектом или строкой с JSON внутри.
func decodeMetadata(raw json.RawMessage) (models.PaymentMetadata, error) {
	var metadata models.PaymentMetadata
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return metadata, ErrWebhookMetadataEmpty
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return metadata, fmt.Errorf("%w: %v", ErrWebhookMetadataEmpty, err)
		}
		raw = []byte(inner)
	}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return metadata, fmt.Errorf("%w: field %s has wrong type", ErrWebhookMetadataEmpty, typeErr.Field)
		}
		return metadata, fmt.Errorf("%w: %v", ErrWebhookMetadataEmpty, err)
	}
	if !metadata.Complete() {
		return metadata, ErrWebhookMetadataEmpty
	}
	return metadata, nil
}
