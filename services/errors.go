package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound      = errors.New("requested resource not found")
	ErrEventNotFound = errors.New("event not found")

	// Ошибки валидации
	ErrValidationFailed      = errors.New("validation failed") // Общая ошибка валидации
	ErrParticipantRequired   = errors.New("participant id is required")
	ErrTournamentRequired    = errors.New("tournament id is required")
	ErrPhaseRequired         = errors.New("phase id is required")
	ErrEventIDRequired       = errors.New("event id is required")
	ErrInvalidVoteCount      = errors.New("vote count must be at least 1")
	ErrInvalidUnitPrice      = errors.New("unit price must be at least 1")
	ErrAmountOverflow        = errors.New("vote amount is too large")
	ErrTooManyVotes          = errors.New("vote count exceeds the per-submission limit")
	ErrUnitPriceMismatch     = errors.New("unit price does not match the event vote price")
	ErrVotingClosed          = errors.New("no phase is open for voting")
	ErrPhaseNotActive        = errors.New("phase is not open for voting")
	ErrParticipantNotInPhase = errors.New("participant does not compete in this phase")
	ErrCallbackURLRequired   = errors.New("callback url is required")
	ErrInvalidPhaseWindow    = errors.New("phase start date must not be after end date")
	ErrInvalidWebhookEvent   = errors.New("webhook payload is invalid")
	ErrWebhookMetadataEmpty  = errors.New("webhook custom metadata is missing or incomplete")

	// Ошибки внешних сервисов
	ErrUpstreamUnavailable = errors.New("upstream service is unavailable")
	ErrReconciliation      = errors.New("failed to apply gateway event")
	ErrPaymentUnderpaid    = errors.New("paid amount is below the price of the votes")

	// Ошибки аутентификации и авторизации
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrForbiddenOperation   = errors.New("operation not allowed for the current user")
)

// PaymentFailedMessage показывается клиенту, когда шлюз или бэкенд не вернули своё сообщение.
const PaymentFailedMessage = "Le paiement n'a pas pu être initié. Veuillez réessayer."
