package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Dosada05/talent-vote/models"
)

var (
	ErrGatewayEventNotFound = errors.New("gateway event not found")
	ErrLedgerUnavailable    = errors.New("gateway event ledger table is missing")
	ErrGatewayEventInvalid  = errors.New("gateway event violates ledger constraints")
)

// GatewayEventRepository - журнал обработанных уведомлений шлюза.
// Ключ идемпотентности: (transaction_id, status).
type GatewayEventRepository interface {
	// Claim занимает событие для обработки. false, если событие уже применено
	// или сейчас обрабатывается другим запросом (захват моложе claimLease).
	// При успехе заполняет ID, Attempts, State и CreatedAt.
	Claim(ctx context.Context, event *models.GatewayEvent) (bool, error)

	// MarkApplied фиксирует, что бэкенд принял обновление.
	MarkApplied(ctx context.Context, id int64, archiveKey *string) error

	// Release снимает захват, чтобы повтор уведомления от шлюза применил событие заново.
	Release(ctx context.Context, id int64) error

	// IsApplied сообщает, применён ли уже статус status для транзакции.
	IsApplied(ctx context.Context, transactionID string, status models.PaymentStatus) (bool, error)

	List(ctx context.Context, limit, offset int) ([]models.GatewayEvent, error)
}

// Захват старше этого интервала считается брошенным (процесс упал между claim и apply).
const claimLease = "1 minute"

type postgresGatewayEventRepository struct {
	db *sql.DB
}

func NewPostgresGatewayEventRepository(db *sql.DB) GatewayEventRepository {
	return &postgresGatewayEventRepository{db: db}
}

func (r *postgresGatewayEventRepository) Claim(ctx context.Context, event *models.GatewayEvent) (bool, error) {
	query := `
		INSERT INTO gateway_events (
			transaction_id, status, payment_id, participant_id, tournament_id, phase_id,
			vote_count, amount, merchant_reference, state, attempts, claimed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'claimed', 1, NOW())
		ON CONFLICT (transaction_id, status) DO UPDATE
		SET attempts   = gateway_events.attempts + 1,
		    claimed_at = NOW(),
		    state      = 'claimed'
		WHERE gateway_events.state <> 'applied'
		  AND (gateway_events.claimed_at IS NULL
		       OR gateway_events.claimed_at < NOW() - INTERVAL '` + claimLease + `')
		RETURNING id, attempts, state, created_at`

	err := r.db.QueryRowContext(ctx, query,
		event.TransactionID,
		event.Status,
		event.PaymentID,
		event.ParticipantID,
		event.TournamentID,
		event.PhaseID,
		event.VoteCount,
		event.Amount,
		event.MerchantReference,
	).Scan(&event.ID, &event.Attempts, &event.State, &event.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Конфликт без обновления: событие уже применено или занято.
			return false, nil
		}
		return false, mapLedgerError(err)
	}
	return true, nil
}

func (r *postgresGatewayEventRepository) MarkApplied(ctx context.Context, id int64, archiveKey *string) error {
	query := `
		UPDATE gateway_events
		SET state = 'applied', applied_at = NOW(), archive_key = $2
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, archiveKey)
	if err != nil {
		return mapLedgerError(err)
	}
	return checkAffectedRows(result, ErrGatewayEventNotFound)
}

func (r *postgresGatewayEventRepository) Release(ctx context.Context, id int64) error {
	query := `
		UPDATE gateway_events
		SET claimed_at = NULL
		WHERE id = $1 AND state = 'claimed'`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return mapLedgerError(err)
	}
	return checkAffectedRows(result, ErrGatewayEventNotFound)
}

func (r *postgresGatewayEventRepository) IsApplied(ctx context.Context, transactionID string, status models.PaymentStatus) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM gateway_events
			WHERE transaction_id = $1 AND status = $2 AND state = 'applied'
		)`

	var applied bool
	if err := r.db.QueryRowContext(ctx, query, transactionID, status).Scan(&applied); err != nil {
		return false, mapLedgerError(err)
	}
	return applied, nil
}

func (r *postgresGatewayEventRepository) List(ctx context.Context, limit, offset int) ([]models.GatewayEvent, error) {
	query := `
		SELECT id, transaction_id, status, payment_id, participant_id, tournament_id, phase_id,
		       vote_count, amount, merchant_reference, state, attempts, archive_key, created_at, applied_at
		FROM gateway_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	defer rows.Close()

	events := make([]models.GatewayEvent, 0, limit)
	for rows.Next() {
		var ev models.GatewayEvent
		var archiveKey sql.NullString
		var appliedAt sql.NullTime
		if scanErr := rows.Scan(
			&ev.ID,
			&ev.TransactionID,
			&ev.Status,
			&ev.PaymentID,
			&ev.ParticipantID,
			&ev.TournamentID,
			&ev.PhaseID,
			&ev.VoteCount,
			&ev.Amount,
			&ev.MerchantReference,
			&ev.State,
			&ev.Attempts,
			&archiveKey,
			&ev.CreatedAt,
			&appliedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan gateway event: %w", scanErr)
		}
		if archiveKey.Valid {
			ev.ArchiveKey = &archiveKey.String
		}
		if appliedAt.Valid {
			ev.AppliedAt = &appliedAt.Time
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gateway events: %w", err)
	}
	return events, nil
}

func mapLedgerError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42P01": // undefined_table
			return fmt.Errorf("%w: %v", ErrLedgerUnavailable, pqErr)
		case "23502", "23514": // not_null_violation, check_violation
			return fmt.Errorf("%w: %s", ErrGatewayEventInvalid, pqErr.Message)
		}
	}
	return err
}
