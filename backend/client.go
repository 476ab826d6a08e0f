// Package backend is the client for the platform's REST backend, which owns
// events, participants and payment records.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Dosada05/talent-vote/models"
)

var ErrMalformedResponse = errors.New("backend returned a malformed response")

// APIError - ответ бэкенда со статусом не 2xx. Message передаётся клиенту как есть.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend responded with status %d", e.StatusCode)
}

type Client struct {
	baseURL    string
	apiToken   string
	location   *time.Location
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a backend client. Every call is a single attempt bounded by
// timeout. loc is applied to phase dates that come without a zone.
func NewClient(baseURL, apiToken string, timeout time.Duration, loc *time.Location, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		location: loc,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// GetEvent загружает дерево: событие → турниры → фазы → участники.
// Некорректные даты отклоняются здесь, на границе загрузки.
func (c *Client) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var envelope struct {
		Event *eventDTO `json:"event"`
	}
	if err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(eventID), nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Event == nil {
		return nil, fmt.Errorf("%w: missing event object", ErrMalformedResponse)
	}
	return envelope.Event.toModel(c.location)
}

type createPaymentRequest struct {
	ParticipantID string `json:"participantId"`
	VoteCount     int64  `json:"voteCount"`
	Amount        int64  `json:"amount"`
	TournamentID  string `json:"tournamentId"`
	PhaseID       string `json:"phaseId"`
}

// CreatePayment registers a pending payment record for the vote intent.
func (c *Client) CreatePayment(ctx context.Context, intent models.VoteIntent) (*models.Payment, error) {
	body := createPaymentRequest{
		ParticipantID: intent.ParticipantID,
		VoteCount:     intent.VoteCount,
		Amount:        intent.Amount,
		TournamentID:  intent.TournamentID,
		PhaseID:       intent.PhaseID,
	}

	var envelope struct {
		Payment *paymentDTO `json:"payment"`
	}
	if err := c.do(ctx, http.MethodPost, "/payments", body, &envelope); err != nil {
		return nil, err
	}
	if envelope.Payment == nil || envelope.Payment.ID == "" {
		return nil, fmt.Errorf("%w: payment id is missing", ErrMalformedResponse)
	}
	return envelope.Payment.toModel(), nil
}

// CancelPayment marks a pending record as cancelled; used when the gateway step fails.
func (c *Client) CancelPayment(ctx context.Context, paymentID string) error {
	return c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/cancel", nil, nil)
}

// PaymentStatusUpdate is sent by the webhook reconciliation. On approval the
// backend credits VoteCount votes to the participant.
type PaymentStatusUpdate struct {
	Status               models.PaymentStatus `json:"status"`
	GatewayTransactionID string               `json:"gatewayTransactionId"`
	MerchantReference    string               `json:"merchantReference,omitempty"`
	ParticipantID        string               `json:"participantId"`
	TournamentID         string               `json:"tournamentId"`
	PhaseID              string               `json:"phaseId"`
	VoteCount            int64                `json:"voteCount"`
	Amount               int64                `json:"amount"`
}

func (c *Client) UpdatePaymentStatus(ctx context.Context, paymentID string, update PaymentStatusUpdate) error {
	return c.do(ctx, http.MethodPatch, "/payments/"+url.PathEscape(paymentID)+"/status", update, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, dst interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal backend request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create backend request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute backend request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read backend response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: extractMessage(respBody)}
		c.logger.Warn("backend request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("message", apiErr.Message),
		)
		return apiErr
	}

	if dst == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func extractMessage(body []byte) string {
	var errBody struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &errBody); err != nil {
		return ""
	}
	if errBody.Message != "" {
		return errBody.Message
	}
	return errBody.Error
}
