package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Dosada05/talent-vote/gateway"
	"github.com/Dosada05/talent-vote/models"
)

// VoteState - шаг оркестрации голосования.
type VoteState string

const (
	VoteStateIdle                       VoteState = "IDLE"
	VoteStateCreatingPaymentRecord      VoteState = "CREATING_PAYMENT_RECORD"
	VoteStateCreatingGatewayTransaction VoteState = "CREATING_GATEWAY_TRANSACTION"
	VoteStateRedirecting                VoteState = "REDIRECTING"
	VoteStatePaymentRecordFailed        VoteState = "PAYMENT_RECORD_FAILED"
	VoteStateGatewayTransactionFailed   VoteState = "GATEWAY_TRANSACTION_FAILED"
)

// PaymentRecorder is the backend side of a vote: pending payment records.
type PaymentRecorder interface {
	CreatePayment(ctx context.Context, intent models.VoteIntent) (*models.Payment, error)
	CancelPayment(ctx context.Context, paymentID string) error
}

// TransactionCreator is the payment gateway side of a vote.
type TransactionCreator interface {
	CreateTransaction(ctx context.Context, req gateway.CreateTransactionRequest) (*gateway.Transaction, error)
}

// VoteEventLoader отдаёт проверенное дерево события; цена голоса и активная
// фаза берутся только оттуда.
type VoteEventLoader interface {
	LoadEvent(ctx context.Context, eventID string) (*models.Event, error)
	Location() *time.Location
}

// SubmitVoteInput: UnitPrice необязателен. Если клиент его прислал, он должен
// совпадать с ценой голоса события.
type SubmitVoteInput struct {
	EventID       string `json:"event_id"`
	ParticipantID string `json:"participant_id"`
	VoteCount     int64  `json:"vote_count"`
	UnitPrice     int64  `json:"unit_price,omitempty"`
	TournamentID  string `json:"tournament_id"`
	PhaseID       string `json:"phase_id"`
	CallbackURL   string `json:"callback_url"`
}

// VoteCheckout - результат успешной оркестрации: куда отправить браузер.
type VoteCheckout struct {
	CheckoutURL       string    `json:"checkout_url"`
	PaymentID         string    `json:"payment_id"`
	TransactionID     string    `json:"transaction_id,omitempty"`
	MerchantReference string    `json:"merchant_reference"`
	Amount            int64     `json:"amount"`
	State             VoteState `json:"state"`
}

// VoteError wraps an upstream failure with the terminal state it caused.
type VoteError struct {
	State     VoteState
	PaymentID string
	Err       error
}

func (e *VoteError) Error() string {
	return e.Err.Error()
}

func (e *VoteError) Unwrap() error {
	return e.Err
}

type VoteService interface {
	SubmitVote(ctx context.Context, input SubmitVoteInput) (*VoteCheckout, error)
}

type voteService struct {
	events        VoteEventLoader
	payments      PaymentRecorder
	transactions  TransactionCreator
	operatorEmail string
	maxVotes      int64
	cancelTimeout time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// NewVoteService: maxVotes <= 0 означает ограничение только переполнением суммы.
func NewVoteService(
	events VoteEventLoader,
	payments PaymentRecorder,
	transactions TransactionCreator,
	operatorEmail string,
	maxVotes int64,
	logger *slog.Logger,
) VoteService {
	return &voteService{
		events:        events,
		payments:      payments,
		transactions:  transactions,
		operatorEmail: operatorEmail,
		maxVotes:      maxVotes,
		cancelTimeout: 10 * time.Second,
		now:           time.Now,
		logger:        logger,
	}
}

// SubmitVote проходит IDLE → CREATING_PAYMENT_RECORD → CREATING_GATEWAY_TRANSACTION → REDIRECTING.
// Каждый внешний вызов выполняется один раз; повторов нет.
func (s *voteService) SubmitVote(ctx context.Context, input SubmitVoteInput) (*VoteCheckout, error) {
	intent, err := buildVoteIntent(input, s.maxVotes)
	if err != nil {
		return nil, err
	}
	callbackURL := strings.TrimSpace(input.CallbackURL)
	if callbackURL == "" {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, ErrCallbackURLRequired)
	}
	eventID := strings.TrimSpace(input.EventID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, ErrEventIDRequired)
	}

	event, err := s.events.LoadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.checkVotingWindow(event, intent); err != nil {
		return nil, err
	}
	if intent, err = priceVoteIntent(intent, event.VotePrice, input.UnitPrice); err != nil {
		return nil, err
	}

	log := s.logger.With(
		slog.String("participant_id", intent.ParticipantID),
		slog.String("tournament_id", intent.TournamentID),
		slog.String("phase_id", intent.PhaseID),
		slog.Int64("vote_count", intent.VoteCount),
		slog.Int64("amount", intent.Amount),
	)
	state := VoteStateIdle
	transition := func(next VoteState, attrs ...any) {
		log.InfoContext(ctx, "vote state transition", append([]any{slog.String("from", string(state)), slog.String("to", string(next))}, attrs...)...)
		state = next
	}

	transition(VoteStateCreatingPaymentRecord)
	payment, err := s.payments.CreatePayment(ctx, intent)
	if err != nil {
		transition(VoteStatePaymentRecordFailed, slog.Any("error", err))
		return nil, &VoteError{State: VoteStatePaymentRecordFailed, Err: err}
	}

	transition(VoteStateCreatingGatewayTransaction, slog.String("payment_id", payment.ID))
	reference := merchantReference(intent, s.now())
	tx, err := s.transactions.CreateTransaction(ctx, gateway.CreateTransactionRequest{
		Description:       voteDescription(intent),
		Amount:            intent.Amount,
		Currency:          gateway.Currency{ISO: models.CurrencyXOF},
		CallbackURL:       callbackURL,
		Customer:          gateway.Customer{Email: s.operatorEmail},
		MerchantReference: reference,
		CustomMetadata: models.PaymentMetadata{
			ParticipantID: models.FlexibleID(intent.ParticipantID),
			VoteCount:     intent.VoteCount,
			UnitPrice:     intent.UnitPrice,
			TournamentID:  models.FlexibleID(intent.TournamentID),
			PhaseID:       models.FlexibleID(intent.PhaseID),
			PaymentID:     models.FlexibleID(payment.ID),
		},
	})
	if err != nil {
		transition(VoteStateGatewayTransactionFailed, slog.String("payment_id", payment.ID), slog.Any("error", err))
		s.cancelOrphan(ctx, log, payment.ID)
		return nil, &VoteError{State: VoteStateGatewayTransactionFailed, PaymentID: payment.ID, Err: err}
	}

	transition(VoteStateRedirecting, slog.String("payment_id", payment.ID), slog.String("transaction_id", tx.ID.String()))
	return &VoteCheckout{
		CheckoutURL:       tx.PaymentURL,
		PaymentID:         payment.ID,
		TransactionID:     tx.ID.String(),
		MerchantReference: reference,
		Amount:            intent.Amount,
		State:             VoteStateRedirecting,
	}, nil
}

// cancelOrphan отменяет запись, для которой шлюз не создал транзакцию.
// Ошибка только логируется: клиент должен увидеть ошибку шлюза.
func (s *voteService) cancelOrphan(ctx context.Context, log *slog.Logger, paymentID string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cancelTimeout)
	defer cancel()

	if err := s.payments.CancelPayment(cancelCtx, paymentID); err != nil {
		log.WarnContext(ctx, "Failed to cancel orphaned pending payment",
			slog.String("payment_id", paymentID), slog.Any("error", err))
		return
	}
	log.InfoContext(ctx, "Orphaned pending payment cancelled", slog.String("payment_id", paymentID))
}

// checkVotingWindow: голосовать можно только за активную фазу события,
// её турнир и участника этой фазы.
func (s *voteService) checkVotingWindow(event *models.Event, intent models.VoteIntent) error {
	tournament, phase := activePhaseOf(event, s.now(), s.events.Location())
	switch {
	case phase == nil:
		return fmt.Errorf("%w: %w", ErrValidationFailed, ErrVotingClosed)
	case phase.ID != intent.PhaseID:
		return fmt.Errorf("%w: %w: %s", ErrValidationFailed, ErrPhaseNotActive, intent.PhaseID)
	case tournament.ID != intent.TournamentID:
		return fmt.Errorf("%w: %w: tournament %s", ErrValidationFailed, ErrPhaseNotActive, intent.TournamentID)
	}

	// Бэкенд может не раскрывать состав фазы; тогда участника проверит он сам.
	if len(phase.Participants) == 0 {
		return nil
	}
	for _, p := range phase.Participants {
		if p.ID == intent.ParticipantID {
			return nil
		}
	}
	return fmt.Errorf("%w: %w: %s", ErrValidationFailed, ErrParticipantNotInPhase, intent.ParticipantID)
}

// activePhaseOf возвращает активную фазу вместе с турниром, которому она принадлежит.
func activePhaseOf(event *models.Event, now time.Time, loc *time.Location) (*models.Tournament, *models.Phase) {
	phase := ResolveActivePhase(event, now, loc)
	if phase == nil {
		return nil, nil
	}
	for ti := range event.Tournaments {
		tournament := &event.Tournaments[ti]
		for pi := range tournament.Phases {
			if &tournament.Phases[pi] == phase {
				return tournament, phase
			}
		}
	}
	return nil, nil
}

func buildVoteIntent(input SubmitVoteInput, maxVotes int64) (models.VoteIntent, error) {
	intent := models.VoteIntent{
		ParticipantID: strings.TrimSpace(input.ParticipantID),
		VoteCount:     input.VoteCount,
		TournamentID:  strings.TrimSpace(input.TournamentID),
		PhaseID:       strings.TrimSpace(input.PhaseID),
	}

	switch {
	case intent.ParticipantID == "":
		return intent, fmt.Errorf("%w: %w", ErrValidationFailed, ErrParticipantRequired)
	case intent.TournamentID == "":
		return intent, fmt.Errorf("%w: %w", ErrValidationFailed, ErrTournamentRequired)
	case intent.PhaseID == "":
		return intent, fmt.Errorf("%w: %w", ErrValidationFailed, ErrPhaseRequired)
	case intent.VoteCount < 1:
		return intent, fmt.Errorf("%w: %w (got %d)", ErrValidationFailed, ErrInvalidVoteCount, intent.VoteCount)
	case maxVotes > 0 && intent.VoteCount > maxVotes:
		return intent, fmt.Errorf("%w: %w (got %d, max %d)", ErrValidationFailed, ErrTooManyVotes, intent.VoteCount, maxVotes)
	case input.UnitPrice < 0:
		return intent, fmt.Errorf("%w: %w (got %d)", ErrValidationFailed, ErrInvalidUnitPrice, input.UnitPrice)
	}
	return intent, nil
}

// priceVoteIntent считает сумму по цене события. Цена клиента только сверяется.
func priceVoteIntent(intent models.VoteIntent, votePrice, clientPrice int64) (models.VoteIntent, error) {
	switch {
	case votePrice < 1:
		return intent, fmt.Errorf("%w: %w (event price %d)", ErrValidationFailed, ErrInvalidUnitPrice, votePrice)
	case clientPrice != 0 && clientPrice != votePrice:
		return intent, fmt.Errorf("%w: %w (got %d, want %d)", ErrValidationFailed, ErrUnitPriceMismatch, clientPrice, votePrice)
	case intent.VoteCount > math.MaxInt64/votePrice:
		return intent, fmt.Errorf("%w: %w", ErrValidationFailed, ErrAmountOverflow)
	}

	intent.UnitPrice = votePrice
	intent.Amount = intent.VoteCount * votePrice
	return intent, nil
}

func merchantReference(intent models.VoteIntent, at time.Time) string {
	return fmt.Sprintf("vote-%s-%s-%d", intent.TournamentID, intent.ParticipantID, at.UnixMilli())
}

func voteDescription(intent models.VoteIntent) string {
	if intent.VoteCount == 1 {
		return fmt.Sprintf("Achat de 1 vote pour le participant %s", intent.ParticipantID)
	}
	return fmt.Sprintf("Achat de %d votes pour le participant %s", intent.VoteCount, intent.ParticipantID)
}
