package controller

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"foodmarket/internal/domain"
	"foodmarket/internal/dto"
	"foodmarket/internal/payment/service"
	"foodmarket/internal/server/httpx"
)

type PaymentService interface {
	Initiate(ctx context.Context, userID, orderID, phone string) (*service.InitiateResult, error)
	CheckStatus(ctx context.Context, paymentID, actorID string) (*domain.Payment, error)
	HandleWebhook(ctx context.Context, provider string, payload service.WebhookPayload) (*domain.Payment, error)
	Health(ctx context.Context) service.GatewayHealth
}

type PaymentController struct {
	service PaymentService
	logger  *zap.Logger
}

func NewPaymentController(svc PaymentService, logger *zap.Logger) *PaymentController {
	return &PaymentController{
		service: svc,
		logger:  logger,
	}
}

// OrderRoutes is mounted under /orders.
func (c *PaymentController) OrderRoutes(r chi.Router) {
	r.Post("/{id}/payments", c.Initiate)
}

// Routes is mounted under /payments.
func (c *PaymentController) Routes(r chi.Router) {
	r.Get("/gateway/health", c.GatewayHealth)
	r.Get("/{id}", c.Get)
}

// WebhookRoutes is mounted under /webhooks, outside authentication.
func (c *PaymentController) WebhookRoutes(r chi.Router) {
	r.Post("/{provider}", c.Webhook)
}

func (c *PaymentController) Initiate(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	var req dto.InitiatePaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}

	res, err := c.service.Initiate(r.Context(), userID, chi.URLParam(r, "id"), req.PhoneNumber)
	if err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, dto.PaymentResponse{TraceID: traceID, Payment: toPaymentDTO(res.Payment)}, logger)
}

func (c *PaymentController) Get(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	payment, err := c.service.CheckStatus(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.PaymentResponse{TraceID: traceID, Payment: toPaymentDTO(payment)}, logger)
}

// Webhook must answer non-2xx on any failure so that the provider redelivers.
func (c *PaymentController) Webhook(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	provider := chi.URLParam(r, "provider")
	logger := c.logger.With(zap.String("traceId", traceID), zap.String("provider", provider))

	var body dto.WebhookPayload
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}

	payload := service.WebhookPayload{
		ReferenceID: body.ReferenceID,
		Status:      domain.GatewayStatus(body.Status),
	}
	if body.FinancialTransactionID != nil {
		payload.FinancialTransactionID = *body.FinancialTransactionID
	}
	if body.Reason != nil {
		payload.Reason = *body.Reason
	}

	payment, err := c.service.HandleWebhook(r.Context(), provider, payload)
	if err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.PaymentResponse{TraceID: traceID, Payment: toPaymentDTO(payment)}, logger)
}

func (c *PaymentController) GatewayHealth(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	if _, ok := httpx.RequireUser(w, r, traceID, logger); !ok {
		return
	}

	h := c.service.Health(r.Context())
	resp := dto.GatewayHealthResponse{TraceID: traceID, Ready: h.Ready}

	status := http.StatusOK
	if h.Err != nil {
		resp.Error = h.Err.Error()
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, resp, logger)
}

func toPaymentDTO(p *domain.Payment) dto.PaymentDTO {
	return dto.PaymentDTO{
		ID:            p.ID,
		OrderID:       p.OrderID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		PhoneNumber:   p.PhoneNumber,
		Status:        string(p.Status),
		Provider:      p.Provider,
		ReferenceID:   p.ProviderTransactionID,
		FailureReason: p.Metadata.FailureReason,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
