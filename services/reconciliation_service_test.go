package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/talent-vote/backend"
	"github.com/Dosada05/talent-vote/models"
)

type memoryLedger struct {
	nextID  int64
	rows    map[string]*models.GatewayEvent
	claimed map[int64]bool
	listErr error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{rows: map[string]*models.GatewayEvent{}, claimed: map[int64]bool{}}
}

func ledgerKey(ev *models.GatewayEvent) string {
	return ev.TransactionID + "|" + string(ev.Status)
}

func (l *memoryLedger) Claim(ctx context.Context, ev *models.GatewayEvent) (bool, error) {
	if row, ok := l.rows[ledgerKey(ev)]; ok {
		if row.State == models.GatewayEventApplied || l.claimed[row.ID] {
			return false, nil
		}
		row.Attempts++
		l.claimed[row.ID] = true
		ev.ID, ev.Attempts, ev.State = row.ID, row.Attempts, models.GatewayEventClaimed
		return true, nil
	}
	l.nextID++
	ev.ID, ev.Attempts, ev.State = l.nextID, 1, models.GatewayEventClaimed
	row := *ev
	l.rows[ledgerKey(ev)] = &row
	l.claimed[row.ID] = true
	return true, nil
}

func (l *memoryLedger) find(id int64) *models.GatewayEvent {
	for _, row := range l.rows {
		if row.ID == id {
			return row
		}
	}
	return nil
}

func (l *memoryLedger) MarkApplied(ctx context.Context, id int64, archiveKey *string) error {
	row := l.find(id)
	if row == nil {
		return errors.New("not found")
	}
	row.State = models.GatewayEventApplied
	row.ArchiveKey = archiveKey
	return nil
}

func (l *memoryLedger) Release(ctx context.Context, id int64) error {
	l.claimed[id] = false
	return nil
}

func (l *memoryLedger) IsApplied(ctx context.Context, transactionID string, status models.PaymentStatus) (bool, error) {
	row, ok := l.rows[transactionID+"|"+string(status)]
	return ok && row.State == models.GatewayEventApplied, nil
}

func (l *memoryLedger) List(ctx context.Context, limit, offset int) ([]models.GatewayEvent, error) {
	if l.listErr != nil {
		return nil, l.listErr
	}
	out := []models.GatewayEvent{}
	for _, row := range l.rows {
		out = append(out, *row)
	}
	return out, nil
}

type fakeStatusUpdater struct {
	err     error
	updates []backend.PaymentStatusUpdate
	ids     []string
}

func (f *fakeStatusUpdater) UpdatePaymentStatus(ctx context.Context, paymentID string, update backend.PaymentStatusUpdate) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, paymentID)
	f.updates = append(f.updates, update)
	return nil
}

type recordingNotifier struct{ updates []VotesUpdate }

func (n *recordingNotifier) NotifyVotesUpdated(update VotesUpdate) {
	n.updates = append(n.updates, update)
}

type recordingPublisher struct {
	keys     []string
	payloads []interface{}
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	p.keys = append(p.keys, routingKey)
	p.payloads = append(p.payloads, payload)
	return p.err
}

type fakeArchiver struct{ bodies map[string]string }

func (a *fakeArchiver) ArchiveWebhook(ctx context.Context, transactionID string, body []byte) (string, error) {
	key := "archive/" + transactionID
	a.bodies[key] = string(body)
	return key, nil
}

type reconcileFixture struct {
	svc       ReconciliationService
	ledger    *memoryLedger
	payments  *fakeStatusUpdater
	notifier  *recordingNotifier
	publisher *recordingPublisher
	archiver  *fakeArchiver
}

func newReconcileFixture() *reconcileFixture {
	f := &reconcileFixture{
		ledger:    newMemoryLedger(),
		payments:  &fakeStatusUpdater{},
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
		archiver:  &fakeArchiver{bodies: map[string]string{}},
	}
	f.svc = NewReconciliationService(f.ledger, f.payments, f.notifier, f.publisher, f.archiver, discardLogger())
	return f
}

func webhookBody(name, status, metadata string) []byte {
	return paidWebhookBody(name, status, 750, metadata)
}

func paidWebhookBody(name, status string, amount int64, metadata string) []byte {
	return []byte(fmt.Sprintf(`{"id":9001,"name":%q,"entity":{"id":555,"reference":"trx_abc","status":%q,
		"amount":%d,"merchant_reference":"vote-t1-p1-1736938800000","custom_metadata":%s}}`, name, status, amount, metadata))
}

const fullMetadata = `{"participantId":"p1","voteCount":3,"unitPrice":250,"tournamentId":"t1","phaseId":"ph1","paymentId":981}`

func TestHandleWebhook_ApprovedAppliesOnce(t *testing.T) {
	f := newReconcileFixture()
	body := webhookBody("transaction.approved", "approved", fullMetadata)

	result, err := f.svc.HandleWebhook(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, "555", result.TransactionID)
	assert.Equal(t, "981", result.PaymentID)

	require.Len(t, f.payments.updates, 1)
	assert.Equal(t, "981", f.payments.ids[0])
	assert.Equal(t, backend.PaymentStatusUpdate{
		Status:               models.PaymentStatusApproved,
		GatewayTransactionID: "555",
		MerchantReference:    "vote-t1-p1-1736938800000",
		ParticipantID:        "p1",
		TournamentID:         "t1",
		PhaseID:              "ph1",
		VoteCount:            3,
		Amount:               750,
	}, f.payments.updates[0])

	assert.Equal(t, []VotesUpdate{{TournamentID: "t1", PhaseID: "ph1", ParticipantID: "p1", VoteCount: 3}}, f.notifier.updates)
	assert.Equal(t, []string{RoutingKeyVoteConfirmed}, f.publisher.keys)
	assert.Equal(t, string(body), f.archiver.bodies["archive/555"])

	again, err := f.svc.HandleWebhook(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, again.Outcome)
	assert.Len(t, f.payments.updates, 1, "duplicate delivery must not credit votes twice")
	assert.Len(t, f.notifier.updates, 1)

	rows, err := f.svc.ListEvents(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.GatewayEventApplied, rows[0].State)
	require.NotNil(t, rows[0].ArchiveKey)
}

func TestHandleWebhook_StatusMapping(t *testing.T) {
	tests := []struct {
		name, event, status string
		outcome             ReconcileOutcome
		want                models.PaymentStatus
	}{
		{name: "declined", event: "transaction.declined", status: "declined", outcome: OutcomeApplied, want: models.PaymentStatusFailed},
		{name: "canceled", event: "transaction.canceled", status: "canceled", outcome: OutcomeApplied, want: models.PaymentStatusFailed},
		{name: "status only", event: "", status: "approved", outcome: OutcomeApplied, want: models.PaymentStatusApproved},
		{name: "created is ignored", event: "transaction.created", status: "pending", outcome: OutcomeIgnored},
		{name: "unknown is ignored", event: "customer.updated", status: "", outcome: OutcomeIgnored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcileFixture()
			result, err := f.svc.HandleWebhook(context.Background(), webhookBody(tt.event, tt.status, fullMetadata))
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, result.Outcome)
			if tt.outcome != OutcomeApplied {
				assert.Empty(t, f.payments.updates)
				return
			}
			require.Len(t, f.payments.updates, 1)
			assert.Equal(t, tt.want, f.payments.updates[0].Status)
			if tt.want == models.PaymentStatusFailed {
				assert.Empty(t, f.notifier.updates)
				assert.Equal(t, []string{RoutingKeyPaymentFailed}, f.publisher.keys)
			}
		})
	}
}

func TestHandleWebhook_StringifiedMetadata(t *testing.T) {
	f := newReconcileFixture()
	quoted := fmt.Sprintf("%q", fullMetadata)

	result, err := f.svc.HandleWebhook(context.Background(), webhookBody("transaction.approved", "approved", quoted))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, "981", f.payments.ids[0])
}

func TestHandleWebhook_RejectsBadPayloads(t *testing.T) {
	f := newReconcileFixture()

	_, err := f.svc.HandleWebhook(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidWebhookEvent)

	_, err = f.svc.HandleWebhook(context.Background(), []byte(`{"name":"transaction.approved","entity":{"status":"approved"}}`))
	assert.ErrorIs(t, err, ErrInvalidWebhookEvent)

	_, err = f.svc.HandleWebhook(context.Background(), webhookBody("transaction.approved", "approved", `null`))
	assert.ErrorIs(t, err, ErrWebhookMetadataEmpty)

	_, err = f.svc.HandleWebhook(context.Background(), webhookBody("transaction.approved", "approved", `{"participantId":"p1","voteCount":3}`))
	assert.ErrorIs(t, err, ErrWebhookMetadataEmpty)

	assert.Empty(t, f.payments.updates)
	assert.Empty(t, f.ledger.rows)
}

func TestHandleWebhook_BackendFailureReleasesClaim(t *testing.T) {
	f := newReconcileFixture()
	f.payments.err = &backend.APIError{StatusCode: 503, Message: "maintenance"}
	body := webhookBody("transaction.approved", "approved", fullMetadata)

	_, err := f.svc.HandleWebhook(context.Background(), body)
	assert.ErrorIs(t, err, ErrReconciliation)
	var apiErr *backend.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Empty(t, f.notifier.updates)
	assert.Empty(t, f.publisher.keys)

	// Шлюз повторяет доставку: запись должна примениться.
	f.payments.err = nil
	result, err := f.svc.HandleWebhook(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Len(t, f.payments.updates, 1)
}

func TestHandleWebhook_OptionalSideEffects(t *testing.T) {
	ledger := newMemoryLedger()
	payments := &fakeStatusUpdater{}
	svc := NewReconciliationService(ledger, payments, nil, nil, nil, discardLogger())

	result, err := svc.HandleWebhook(context.Background(), webhookBody("transaction.approved", "approved", fullMetadata))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Len(t, payments.updates, 1)
}

func TestHandleWebhook_PublishFailureIsNotFatal(t *testing.T) {
	f := newReconcileFixture()
	f.publisher.err = errors.New("channel closed")

	result, err := f.svc.HandleWebhook(context.Background(), webhookBody("transaction.approved", "approved", fullMetadata))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
}

func TestHandleWebhook_UnderpaidApprovalIsNotCredited(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		metadata string
	}{
		{
			name:     "amount below votes times price",
			amount:   750,
			metadata: `{"participantId":"p1","voteCount":1000,"unitPrice":250,"tournamentId":"t1","phaseId":"ph1","paymentId":981}`,
		},
		{name: "one franc short", amount: 749, metadata: fullMetadata},
		{
			name:     "price missing from metadata",
			amount:   750,
			metadata: `{"participantId":"p1","voteCount":3,"tournamentId":"t1","phaseId":"ph1","paymentId":981}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcileFixture()
			result, err := f.svc.HandleWebhook(context.Background(), paidWebhookBody("transaction.approved", "approved", tt.amount, tt.metadata))
			require.NoError(t, err)
			assert.Equal(t, OutcomeRejected, result.Outcome)
			assert.Equal(t, "981", result.PaymentID)

			assert.Empty(t, f.payments.updates)
			assert.Empty(t, f.notifier.updates)
			assert.Empty(t, f.publisher.keys)
			assert.Empty(t, f.ledger.rows)
		})
	}
}

func TestHandleWebhook_OverpaymentIsCredited(t *testing.T) {
	f := newReconcileFixture()
	result, err := f.svc.HandleWebhook(context.Background(), paidWebhookBody("transaction.approved", "approved", 800, fullMetadata))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	require.Len(t, f.payments.updates, 1)
	assert.Equal(t, int64(800), f.payments.updates[0].Amount)
}

func TestHandleWebhook_FailureIsNotCheckedForAmount(t *testing.T) {
	f := newReconcileFixture()
	result, err := f.svc.HandleWebhook(context.Background(), paidWebhookBody("transaction.declined", "declined", 0, fullMetadata))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	require.Len(t, f.payments.updates, 1)
	assert.Equal(t, models.PaymentStatusFailed, f.payments.updates[0].Status)
}

func TestHandleWebhook_LateFailureKeepsApproval(t *testing.T) {
	f := newReconcileFixture()

	approved, err := f.svc.HandleWebhook(context.Background(), webhookBody("transaction.approved", "approved", fullMetadata))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, approved.Outcome)

	for _, event := range []string{"declined", "expired", "canceled"} {
		late, err := f.svc.HandleWebhook(context.Background(), webhookBody("transaction."+event, event, fullMetadata))
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, late.Outcome, event)
	}

	require.Len(t, f.payments.updates, 1)
	assert.Equal(t, models.PaymentStatusApproved, f.payments.updates[0].Status)
	assert.Equal(t, []string{RoutingKeyVoteConfirmed}, f.publisher.keys)
	assert.Len(t, f.ledger.rows, 1)
}

func TestHandleWebhook_FailureBeforeApprovalIsApplied(t *testing.T) {
	f := newReconcileFixture()
	f.payments.err = &backend.APIError{StatusCode: 503}

	// Одобрение не дошло до бэкенда: захват снят, строка не применена.
	_, err := f.svc.HandleWebhook(context.Background(), webhookBody("transaction.approved", "approved", fullMetadata))
	require.ErrorIs(t, err, ErrReconciliation)

	f.payments.err = nil
	result, err := f.svc.HandleWebhook(context.Background(), webhookBody("transaction.expired", "expired", fullMetadata))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	require.Len(t, f.payments.updates, 1)
	assert.Equal(t, models.PaymentStatusFailed, f.payments.updates[0].Status)
}
