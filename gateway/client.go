// Package gateway talks to the hosted-checkout payment provider: it creates
// transactions and verifies the signature of its webhooks.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Dosada05/talent-vote/models"
)

var ErrMissingPaymentURL = errors.New("gateway response does not contain a payment url")

// APIError - ошибка шлюза со статусом не 2xx.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("payment gateway responded with status %d", e.StatusCode)
}

type Currency struct {
	ISO string `json:"iso"`
}

type Customer struct {
	Email string `json:"email"`
}

// CreateTransactionRequest is the body of POST /v1/transactions.
type CreateTransactionRequest struct {
	Description       string                 `json:"description"`
	Amount            int64                  `json:"amount"`
	Currency          Currency               `json:"currency"`
	CallbackURL       string                 `json:"callback_url"`
	Customer          Customer               `json:"customer"`
	MerchantReference string                 `json:"merchant_reference"`
	CustomMetadata    models.PaymentMetadata `json:"custom_metadata"`
}

// Transaction - созданная транзакция шлюза.
type Transaction struct {
	ID                models.FlexibleID `json:"id"`
	Reference         string            `json:"reference"`
	Status            string            `json:"status"`
	Amount            int64             `json:"amount"`
	MerchantReference string            `json:"merchant_reference"`
	PaymentURL        string            `json:"payment_url"`
}

type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, secretKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// CreateTransaction creates a checkout session. A response without a payment
// url is treated as a failure.
func (c *Client) CreateTransaction(ctx context.Context, input CreateTransactionRequest) (*Transaction, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute transaction request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: extractMessage(respBody)}
		c.logger.Warn("gateway transaction request failed",
			slog.Int("status", resp.StatusCode),
			slog.String("message", apiErr.Message),
			slog.String("merchant_reference", input.MerchantReference),
		)
		return nil, apiErr
	}

	tx, err := decodeTransaction(respBody)
	if err != nil {
		return nil, err
	}
	if tx.PaymentURL == "" {
		return nil, ErrMissingPaymentURL
	}
	return tx, nil
}

// decodeTransaction понимает оба формата ответа: с обёрткой "v1/transaction" и без неё.
func decodeTransaction(body []byte) (*Transaction, error) {
	var envelope struct {
		Transaction *Transaction `json:"v1/transaction"`
		PaymentURL  string       `json:"payment_url"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode transaction response: %w", err)
	}
	if envelope.Transaction != nil {
		if envelope.Transaction.PaymentURL == "" {
			envelope.Transaction.PaymentURL = envelope.PaymentURL
		}
		return envelope.Transaction, nil
	}

	var tx Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode transaction response: %w", err)
	}
	return &tx, nil
}

func extractMessage(body []byte) string {
	var errBody struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errBody); err != nil {
		return ""
	}
	return errBody.Message
}
