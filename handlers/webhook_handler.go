package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Dosada05/talent-vote/gateway"
	"github.com/Dosada05/talent-vote/services"
)

type WebhookHandler struct {
	reconciliationService services.ReconciliationService
	verifier              *gateway.SignatureVerifier
	logger                *slog.Logger
}

func NewWebhookHandler(rs services.ReconciliationService, verifier *gateway.SignatureVerifier, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciliationService: rs,
		verifier:              verifier,
		logger:                logger,
	}
}

// HandleGatewayWebhook godoc
// @Summary Уведомление платёжного шлюза о статусе транзакции
// @Description Подпись в заголовке X-FEDAPAY-SIGNATURE обязательна. Повторная доставка подтверждается без повторного применения.
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} services.ReconcileResult
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/webhooks/gateway [post]
func (h *WebhookHandler) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	// Подпись считается по сырым байтам, поэтому тело читается целиком, а не через readJSON.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(maxBodyBytes)))
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			badRequestResponse(w, r, fmt.Errorf("body must not be larger than %d bytes", maxBodyBytes))
			return
		}
		badRequestResponse(w, r, errors.New("failed to read request body"))
		return
	}

	if err := h.verifier.Verify(r.Header.Get(gateway.SignatureHeader), body); err != nil {
		h.logger.WarnContext(r.Context(), "rejected gateway webhook",
			slog.String("remote_addr", r.RemoteAddr), slog.Any("error", err))
		unauthorizedResponse(w, r, "invalid webhook signature")
		return
	}

	result, err := h.reconciliationService.HandleWebhook(r.Context(), body)
	if err != nil {
		if errors.Is(err, services.ErrReconciliation) {
			// 500 заставляет шлюз повторить доставку.
			h.logger.ErrorContext(r.Context(), "gateway webhook not applied", slog.Any("error", err))
			errorResponse(w, r, http.StatusInternalServerError, "reconciliation_failed", "failed to apply gateway event")
			return
		}
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
